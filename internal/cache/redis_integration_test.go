// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisCache_Container(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	c, err := NewRedisCache(RedisOptions{URL: url, Prefix: "crim:", DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	tc := NewTypedCache[map[string]int64](c, time.Minute)
	require.NoError(t, tc.Set(ctx, "counts", map[string]int64{"federal_felons": 3}))

	got, ok := tc.Get(ctx, "counts")
	require.True(t, ok)
	assert.Equal(t, int64(3), got["federal_felons"])

	require.NoError(t, tc.Delete(ctx, "counts"))
	_, ok = tc.Get(ctx, "counts")
	assert.False(t, ok)
}

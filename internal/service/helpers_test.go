// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"testing"
	"time"

	"github.com/olegiv/criminology-go/internal/cache"
	"github.com/olegiv/criminology-go/internal/offense"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/testutil"
)

type testServices struct {
	db      *store.DB
	events  *EventService
	finder  *Finder
	records *RecordService
	users   *UserService
}

func newTestServices(t *testing.T, pageSize int) *testServices {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)

	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	t.Cleanup(func() { _ = mem.Close() })

	table := offense.NewTable()
	events := NewEventService(db)
	finder := NewFinder(db, table, mem, time.Minute, pageSize)
	return &testServices{
		db:      db,
		events:  events,
		finder:  finder,
		records: NewRecordService(db, table, events, finder),
		users:   NewUserService(db, events),
	}
}

func (s *testServices) addRecord(t *testing.T, first, last, source, typ, class string) int64 {
	t.Helper()

	id, err := s.records.Create(context.Background(),
		CriminalInput{FirstName: first, LastName: last},
		OffenseInput{Source: source, Type: typ, Class: class, Description: "Test offense"},
		Actor{})
	if err != nil {
		t.Fatalf("creating %s %s: %v", first, last, err)
	}
	return id
}

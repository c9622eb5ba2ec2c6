// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// TemporaryPasswordLength is the length of generated one-time passwords.
const TemporaryPasswordLength = 10

// temporaryAlphabet omits characters that are easy to misread.
const temporaryAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// TemporaryPassword returns a random password for a newly created account.
// Users must replace it on first login.
func TemporaryPassword() (string, error) {
	buf := make([]byte, TemporaryPasswordLength)
	limit := big.NewInt(int64(len(temporaryAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generating temporary password: %w", err)
		}
		buf[i] = temporaryAlphabet[n.Int64()]
	}
	return string(buf), nil
}

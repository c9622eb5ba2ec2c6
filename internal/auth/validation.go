// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"strings"
	"unicode"
)

// MinPasswordLength is the shortest password accepted.
const MinPasswordLength = 8

// maxSimilarity is the highest allowed similarity ratio between a password
// and any user attribute.
const maxSimilarity = 0.7

var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range strings.Fields(`
		password password1 password123 passw0rd 12345678 123456789 1234567890
		qwerty qwertyuiop qwerty123 iloveyou princess sunshine football baseball
		welcome welcome1 admin123 administrator letmein monkey dragon master
		superman batman trustno1 starwars whatever shadow michael jennifer
		abc12345 abcd1234 11111111 00000000 88888888 87654321 12341234
		changeme changeme123 secret123 computer internet freedom charlie
		mustang access hello123 solo1234 zaq12wsx 1q2w3e4r 1qaz2wsx
		`) {
		commonPasswords[p] = struct{}{}
	}
}

// ValidatePassword checks a candidate password against the strength rules and
// returns one message per violated rule. attrs are user attributes such as
// username, email or names that the password must not resemble.
func ValidatePassword(password string, attrs ...string) []string {
	var problems []string

	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, "Password must contain at least 8 characters.")
	}

	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
		problems = append(problems, "Password can't be entirely numeric.")
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		problems = append(problems, "Password is too common.")
	}

	if tooSimilar(password, attrs) {
		problems = append(problems, "Password is too similar to your personal information.")
	}

	return problems
}

func tooSimilar(password string, attrs []string) bool {
	pw := strings.ToLower(password)
	if pw == "" {
		return false
	}
	for _, attr := range attrs {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		parts := []string{attr}
		parts = append(parts, strings.FieldsFunc(attr, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})...)
		for _, part := range parts {
			if len(part) < 3 {
				continue
			}
			if strings.Contains(pw, part) || similarity(pw, part) >= maxSimilarity {
				return true
			}
		}
	}
	return false
}

// similarity returns 2*LCS/(len(a)+len(b)) where LCS is the longest common
// subsequence of the two strings.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra)+len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(len(ra)+len(rb))
}

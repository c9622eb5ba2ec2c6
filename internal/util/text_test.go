// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import "testing"

func TestSearchKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"José Núñez", "jose nunez"},
		{"  ANNE   marie ", "anne marie"},
		{"Zoë", "zoe"},
		{"Łukasz", "lukasz"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SearchKey(tt.in); got != tt.want {
			t.Errorf("SearchKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Grand larceny", "Grand larceny"},
		{"tags removed", "<b>Assault</b> on <i>officer</i>", "Assault on officer"},
		{"script dropped", "Fraud<script>alert(1)</script>", "Fraud"},
		{"ampersand kept", "Breaking & entering", "Breaking & entering"},
		{"trimmed", "  DUI  ", "DUI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"new users 2026-10-18", "new-users-2026-10-18"},
		{"Café Crème", "cafe-creme"},
		{"--a  b--", "a-b"},
		{"users.csv", "userscsv"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

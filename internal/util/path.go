// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"fmt"
	"path"
	"strings"
)

// SanitizeFilename returns only the base name of an uploaded filename.
// Browsers on Windows may send a full path with backslashes.
func SanitizeFilename(filename string) (string, error) {
	safe := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if safe == "." || safe == ".." || safe == "" || safe == "/" {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}
	return safe, nil
}

// HasExtension reports whether filename ends in ext, ignoring case.
// ext includes the dot.
func HasExtension(filename, ext string) bool {
	return strings.EqualFold(path.Ext(filename), ext)
}

// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package nav

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DesktopShortcut describes a Linux .desktop launcher that reopens the
// browser at a deep-link path.
type DesktopShortcut struct {
	Name     string // display name (usually the deepest crumb title)
	ExecPath string // browser binary invocation target
	IconPath string // absolute icon path
	Path     string // deep-link --path argument
}

// WriteDesktopShortcut writes the launcher file into dir (typically the
// user's Desktop) with 0755 permissions and returns its path.
func WriteDesktopShortcut(dir string, shortcut DesktopShortcut) (string, error) {
	if shortcut.Name == "" {
		return "", fmt.Errorf("shortcut needs a name")
	}
	invocation := fmt.Sprintf("%s --path %s", shortcut.ExecPath, shellSingleQuote(shortcut.Path))
	var sb strings.Builder
	sb.WriteString("[Desktop Entry]\n")
	sb.WriteString("Type=Application\n")
	sb.WriteString(fmt.Sprintf("Name=%s\n", shortcut.Name))
	sb.WriteString(fmt.Sprintf("Exec=/bin/bash -lc '%s'\n", strings.ReplaceAll(invocation, "'", `'\''`)))
	if shortcut.IconPath != "" {
		sb.WriteString(fmt.Sprintf("Icon=%s\n", shortcut.IconPath))
	}
	sb.WriteString("Terminal=false\n")
	filePath := filepath.Join(dir, sanitizeFileName(shortcut.Name)+".desktop")
	if err := os.WriteFile(filePath, []byte(sb.String()), 0o755); err != nil {
		return "", fmt.Errorf("writing desktop shortcut: %w", err)
	}
	return filePath, nil
}

func shellSingleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func sanitizeFileName(name string) string {
	rtn := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == ' ':
			return r
		}
		return '_'
	}, name)
	return strings.TrimSpace(rtn)
}

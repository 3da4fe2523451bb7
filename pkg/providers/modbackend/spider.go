// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package modbackend

import (
	"strings"
)

// ParseSpiderOutput extracts module names from `module spider` output:
// the base module headers ("  python:"), the "Versions:" list, and the
// "Other possible modules matches:" line.  Order is preserved and
// duplicates removed; prose sections (Description, usage hints) are
// skipped.
func ParseSpiderOutput(out string, searchTerm string) []string {
	var rtn []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		rtn = append(rtn, name)
	}
	const (
		stateNone = iota
		stateVersions
		stateOther
		stateDescription
	)
	state := stateNone
	for _, rawLine := range strings.Split(out, "\n") {
		line := strings.TrimRight(rawLine, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "---") {
			if state != stateDescription {
				state = stateNone
			}
			continue
		}
		switch trimmed {
		case "Versions:":
			state = stateVersions
			continue
		case "Other possible modules matches:":
			state = stateOther
			continue
		case "Description:":
			state = stateDescription
			continue
		}
		// section headers like "  python:" introduce a base module; deeper
		// indentation belongs to whatever section is active
		if strings.HasSuffix(trimmed, ":") && !strings.Contains(trimmed, " ") && leadingSpaces(line) <= 2 {
			add(strings.TrimSuffix(trimmed, ":"))
			state = stateNone
			continue
		}
		switch state {
		case stateVersions:
			if !strings.Contains(trimmed, " ") {
				add(trimmed)
			}
		case stateOther:
			for _, name := range strings.Fields(trimmed) {
				add(name)
			}
			state = stateNone
		}
	}
	return rtn
}

func leadingSpaces(line string) int {
	count := 0
	for _, r := range line {
		if r != ' ' {
			break
		}
		count++
	}
	return count
}

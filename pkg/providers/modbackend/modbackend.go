// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package modbackend serves an Lmod software tree: module families as
// WPLmodDependency nodes, installable software as WPLmodSoftware leaves,
// plus free-text search over the whole tree via `module spider` run as a
// background worker (the async search sub-protocol).
package modbackend

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wayportdev/wayport/pkg/searchmgr"
	"github.com/wayportdev/wayport/pkg/wpobj"
)

const (
	boxIconName        = "./resources/Box.png"
	softwareIconName   = "./resources/Software.png"
	softwareMyIconName = "./resources/Software_IDCard.png"
	personIconName     = "./resources/IDCard.png"
)

const modulefilesDirName = "modulefiles"

// loadedGroupId is the synthetic root group that filters to the caller's
// currently loaded modules.
const loadedGroupId = "/<Show:loaded:true>"

const DefaultCmdTimeout = 30 * time.Second

type Backend struct {
	rootName   string
	lmodRoot   string
	cmdTimeout time.Duration
	loaded     map[string]bool
	loadedList []string
}

func MakeBackend(rootName string, lmodRoot string) *Backend {
	if rootName == "" {
		rootName = "Available Software"
	}
	b := &Backend{
		rootName:   rootName,
		lmodRoot:   lmodRoot,
		cmdTimeout: DefaultCmdTimeout,
		loaded:     make(map[string]bool),
	}
	b.refreshLoadedModules(context.Background())
	return b
}

func (b *Backend) RootName() string { return b.rootName }

// refreshLoadedModules parses `module -t list`; module names are one per
// line, versions stripped.
func (b *Backend) refreshLoadedModules(ctx context.Context) {
	out, err := b.runShell(ctx, "module -t list 2>&1")
	if err != nil {
		return
	}
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		if idx := strings.Index(name, "/"); idx != -1 {
			name = name[:idx]
		}
		if !b.loaded[name] {
			b.loaded[name] = true
			b.loadedList = append(b.loadedList, name)
		}
	}
}

// RootObjects lists the top-level module families plus the "My Software"
// group.
func (b *Backend) RootObjects(ctx context.Context) ([]wpobj.WPObj, error) {
	var rtn []wpobj.WPObj
	for _, name := range b.topDirs() {
		dep := &wpobj.WPLmodDependency{}
		dep.ID = "/" + name
		dep.Title = name
		dep.Icon = wpobj.IconRef(boxIconName)
		dep.Objects = b.countModuleChildren(filepath.Join(b.lmodRoot, name))
		rtn = append(rtn, dep)
	}
	group := &wpobj.WPGroup{}
	group.ID = loadedGroupId
	group.Title = "My Software"
	group.Icon = wpobj.IconRef(personIconName)
	group.Objects = len(b.loadedList)
	rtn = append(rtn, group)
	return rtn, nil
}

// OverridePath claims the "My Software" group: its listing is the loaded
// module set with whatis details, not a filter over the root listing.
func (b *Backend) OverridePath(ctx context.Context, objectId string) ([]wpobj.WPObj, bool, error) {
	if objectId != loadedGroupId {
		return nil, false, nil
	}
	var rtn []wpobj.WPObj
	for _, name := range b.loadedList {
		sw := &wpobj.WPLmodSoftware{Loaded: true, Details: b.moduleDetails(ctx, name)}
		sw.ID = "/" + name
		sw.Title = name
		sw.Icon = wpobj.IconRef(softwareMyIconName)
		rtn = append(rtn, sw)
	}
	return rtn, true, nil
}

// ListObjects walks the Lmod tree at base: subdirectories are dependency
// nodes (the modulefiles dir itself is hidden), software lives one level
// under each immediate modulefiles directory.
func (b *Backend) ListObjects(ctx context.Context, base string) ([]wpobj.WPObj, error) {
	rel := strings.Trim(base, "/")
	target := filepath.Join(b.lmodRoot, filepath.FromSlash(rel))
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var rtn []wpobj.WPObj
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == modulefilesDirName {
			continue
		}
		dep := &wpobj.WPLmodDependency{}
		dep.ID = childId(rel, entry.Name())
		dep.Title = entry.Name()
		dep.Icon = wpobj.IconRef(boxIconName)
		dep.Objects = b.countModuleChildren(filepath.Join(target, entry.Name()))
		rtn = append(rtn, dep)
	}
	modFiles := filepath.Join(target, modulefilesDirName)
	if swEntries, err := os.ReadDir(modFiles); err == nil {
		sort.Slice(swEntries, func(i, j int) bool { return swEntries[i].Name() < swEntries[j].Name() })
		for _, entry := range swEntries {
			if !entry.IsDir() {
				continue
			}
			rtn = append(rtn, b.makeSoftwareObject(childId(rel, entry.Name()), entry.Name(), ""))
		}
	}
	return rtn, nil
}

func (b *Backend) makeSoftwareObject(objId string, name string, details string) *wpobj.WPLmodSoftware {
	loaded := b.loaded[name]
	sw := &wpobj.WPLmodSoftware{Loaded: loaded, Details: details}
	sw.ID = objId
	sw.Title = name
	if loaded {
		sw.Icon = wpobj.IconRef(softwareMyIconName)
	} else {
		sw.Icon = wpobj.IconRef(softwareIconName)
	}
	return sw
}

// SearchWorker spiders the module tree for a free-text term.  The worker
// runs in the search manager's goroutine and respects its context.
func (b *Backend) SearchWorker() searchmgr.WorkerFn {
	return func(ctx context.Context, searchTerm string, recursive bool) []wpobj.WPObj {
		if strings.TrimSpace(searchTerm) == "" {
			return nil
		}
		var cmdLine string
		if recursive {
			cmdLine = fmt.Sprintf("module -r spider '.*%s.*' 2>&1", shellSanitize(searchTerm))
		} else {
			cmdLine = fmt.Sprintf("module spider %s 2>&1", shellSanitize(searchTerm))
		}
		out, err := b.runShell(ctx, cmdLine)
		if err != nil {
			log.Printf("[modules] spider search %q: %v\n", searchTerm, err)
			return nil
		}
		names := ParseSpiderOutput(out, searchTerm)
		rtn := make([]wpobj.WPObj, 0, len(names))
		for _, name := range names {
			rtn = append(rtn, b.makeSoftwareObject("/"+name, name, ""))
		}
		return rtn
	}
}

func (b *Backend) moduleDetails(ctx context.Context, name string) string {
	out, err := b.runShell(ctx, fmt.Sprintf("module whatis %s 2>&1", shellSanitize(name)))
	if err != nil {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx == -1 {
			continue
		}
		lines = append(lines, strings.TrimLeft(line[idx+1:], " \t"))
	}
	return strings.Join(lines, "\n")
}

func (b *Backend) topDirs() []string {
	entries, err := os.ReadDir(b.lmodRoot)
	if err != nil {
		return nil
	}
	var rtn []string
	for _, entry := range entries {
		if entry.IsDir() {
			rtn = append(rtn, entry.Name())
		}
	}
	sort.Strings(rtn)
	return rtn
}

// countModuleChildren counts software directories under every nested
// modulefiles dir (the enterable-count hint on dependency nodes).
func (b *Backend) countModuleChildren(base string) int {
	total := 0
	filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == modulefilesDirName {
			if entries, err := os.ReadDir(path); err == nil {
				for _, entry := range entries {
					if entry.IsDir() {
						total++
					}
				}
			}
			return filepath.SkipDir
		}
		return nil
	})
	return total
}

// runShell runs a command through a login shell so the `module` function
// is available in HPC environments.
func (b *Backend) runShell(ctx context.Context, cmdLine string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, b.cmdTimeout)
	defer cancel()
	out, err := exec.CommandContext(cmdCtx, "/bin/bash", "-lc", cmdLine).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("running %q: %w", cmdLine, err)
	}
	return string(out), nil
}

// shellSanitize strips characters that would break out of the single
// shell word the term is interpolated into.
func shellSanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\'', '"', '`', '$', ';', '|', '&', '<', '>', '(', ')', '\n', '\\':
			return -1
		}
		return r
	}, s)
}

func childId(rel string, name string) string {
	if rel == "" {
		return "/" + name
	}
	return "/" + rel + "/" + name
}

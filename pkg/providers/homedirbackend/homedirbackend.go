// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package homedirbackend serves the user's home directory as an object
// tree of WPDirectory / WPFile entries with ownership metadata.  Paths
// are resolved against the home root and may not escape it.
package homedirbackend

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/wayportdev/wayport/pkg/wpobj"
)

const (
	dirIconName  = "./resources/Directory.png"
	fileIconName = "./resources/File.png"
)

type Backend struct {
	rootName string
	homeDir  string
}

func MakeBackend(rootName string) (*Backend, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(homeDir)
	if err == nil {
		homeDir = resolved
	}
	if rootName == "" {
		rootName = "Home Directory"
	}
	return &Backend{rootName: rootName, homeDir: homeDir}, nil
}

func (b *Backend) RootName() string { return b.rootName }

// ListObjects lists the directory at base ("/" is the home root).  A
// path outside the home root, or one that does not exist, yields an
// empty listing — a partial view beats a protocol error here.
func (b *Backend) ListObjects(ctx context.Context, base string) ([]wpobj.WPObj, error) {
	rel := strings.Trim(base, "/")
	target := filepath.Join(b.homeDir, filepath.FromSlash(rel))
	target = filepath.Clean(target)
	if target != b.homeDir && !strings.HasPrefix(target, b.homeDir+string(filepath.Separator)) {
		return nil, nil
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})
	var rtn []wpobj.WPObj
	for _, entry := range entries {
		name := entry.Name()
		objId := "/" + name
		if rel != "" {
			objId = "/" + rel + "/" + name
		}
		owner, group := ownership(filepath.Join(target, name))
		if entry.IsDir() {
			dir := &wpobj.WPDirectory{Owner: owner, Group: group}
			dir.ID = objId
			dir.Title = name
			dir.Icon = wpobj.IconRef(dirIconName)
			dir.Objects = countEntries(filepath.Join(target, name))
			rtn = append(rtn, dir)
			continue
		}
		if entry.Type().IsRegular() {
			file := &wpobj.WPFile{Owner: owner, Group: group}
			file.ID = objId
			file.Title = name
			file.Icon = wpobj.IconRef(fileIconName)
			rtn = append(rtn, file)
		}
	}
	return rtn, nil
}

func countEntries(dirPath string) int {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return 0
	}
	return len(entries)
}

// ownership resolves the owner and group names of a path via the uid/gid
// in its stat data.  Either may be nil when lookup fails.
func ownership(path string) (*string, *string) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, nil
	}
	var owner, group *string
	if u, err := user.LookupId(strconv.FormatUint(uint64(stat.Uid), 10)); err == nil {
		owner = &u.Username
	}
	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(stat.Gid), 10)); err == nil {
		group = &g.Name
	}
	return owner, group
}

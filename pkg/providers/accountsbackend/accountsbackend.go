// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package accountsbackend lists the compute systems the current user can
// reach over batch-mode SSH, as WPAccount leaves.  Probes run once per
// listing with short timeouts; an unreachable system is simply absent.
package accountsbackend

import (
	"context"
	"os/exec"
	"time"

	"github.com/wayportdev/wayport/pkg/wpobj"
)

const idCardIconName = "./resources/IDCard.png"

const probeTimeout = 7 * time.Second

// System is one probe target.
type System struct {
	Name     string
	Hostname string
}

var DefaultSystems = []System{
	{Name: "Quartz", Hostname: "quartz.uits.iu.edu"},
	{Name: "Big Red 200", Hostname: "bigred200.uits.iu.edu"},
	{Name: "Research Desktop", Hostname: "quartz.uits.iu.edu"},
}

type Backend struct {
	rootName string
	systems  []System
}

func MakeBackend(rootName string, systems []System) *Backend {
	if rootName == "" {
		rootName = "Accounts"
	}
	if systems == nil {
		systems = DefaultSystems
	}
	return &Backend{rootName: rootName, systems: systems}
}

func (b *Backend) RootName() string { return b.rootName }

// ListObjects returns the reachable systems.  Accounts are leaves; any
// deeper path lists the same set.
func (b *Backend) ListObjects(ctx context.Context, base string) ([]wpobj.WPObj, error) {
	var rtn []wpobj.WPObj
	for _, system := range b.systems {
		if !hasSSHAccount(ctx, system.Hostname) {
			continue
		}
		account := &wpobj.WPAccount{}
		account.ID = "/" + system.Name
		account.Title = system.Name
		account.Icon = wpobj.IconRef(idCardIconName)
		rtn = append(rtn, account)
	}
	return rtn, nil
}

// hasSSHAccount batch-SSHes to the host as the current user: no password
// prompts, no host-key prompts, short timeout.
func hasSSHAccount(ctx context.Context, hostname string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(probeCtx, "ssh",
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ConnectTimeout=5",
		hostname, "true")
	return cmd.Run() == nil
}

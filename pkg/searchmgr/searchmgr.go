// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package searchmgr implements the asynchronous search sub-protocol used
// by slow providers.  The first Search call issues a handle and kicks off
// a background worker; subsequent polls carrying the handle observe
// progress and, once done, the completed result set (deterministically,
// on every later poll).
package searchmgr

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wayportdev/wayport/pkg/panichandler"
	"github.com/wayportdev/wayport/pkg/util/ds"
	"github.com/wayportdev/wayport/pkg/wpobj"
)

const (
	Status_Running = "running"
	Status_Done    = "done"
)

// MaxResults bounds the stored result set for one handle.
const MaxResults = 50

// DefaultTTL is how long an idle handle survives; polling a handle
// refreshes it.  A TTL of 0 keeps handles for the process lifetime.
const DefaultTTL = 1 * time.Hour

// WorkerFn runs the provider-specific search.  It must honor ctx
// cancellation; its result is deduplicated and bounded before storage.
type WorkerFn func(ctx context.Context, searchTerm string, recursive bool) []wpobj.WPObj

// Manager owns the shared handle state.  All maps are mutex-guarded; the
// background worker for a handle may outlive the connection that created
// it.
type Manager struct {
	statusMap  *ds.SyncMap[string]
	resultsMap *ds.SyncMap[[]wpobj.WPObj]
	touchedMap *ds.SyncMap[time.Time]
	ttl        time.Duration
}

func MakeManager() *Manager {
	return &Manager{
		statusMap:  ds.MakeSyncMap[string](),
		resultsMap: ds.MakeSyncMap[[]wpobj.WPObj](),
		touchedMap: ds.MakeSyncMap[time.Time](),
		ttl:        DefaultTTL,
	}
}

func (m *Manager) SetTTL(ttl time.Duration) {
	m.ttl = ttl
}

// StartSearch issues a new handle, spawns the worker, and returns the
// handle object that must be echoed to the caller immediately.
func (m *Manager) StartSearch(ctx context.Context, searchTerm string, recursive bool, worker WorkerFn) *wpobj.WPLmodSearchHandle {
	handleId := uuid.New().String()
	m.statusMap.Set(handleId, Status_Running)
	m.resultsMap.Set(handleId, nil)
	m.touchedMap.Set(handleId, time.Now())
	go func() {
		defer func() {
			panichandler.PanicHandler("searchmgr:worker", recover())
			m.statusMap.Set(handleId, Status_Done)
		}()
		results := worker(ctx, searchTerm, recursive)
		m.resultsMap.Set(handleId, dedupeAndBound(results))
	}()
	handle := &wpobj.WPLmodSearchHandle{SearchString: searchTerm, Recursive: recursive}
	handle.ID = handleId
	handle.Title = searchTerm
	log.Printf("[search] issued handle %s for %q (recursive=%v)\n", handleId, searchTerm, recursive)
	return handle
}

// Poll returns the current payload for a handle: a single ongoing
// progress object while the worker runs, or the done progress object
// followed by the results.  Unknown handles yield an empty list.
func (m *Manager) Poll(handleId string) []wpobj.WPObj {
	status, found := m.statusMap.GetEx(handleId)
	if !found {
		return nil
	}
	m.touchedMap.Set(handleId, time.Now())
	if status == Status_Running {
		progress := makeProgress(handleId, wpobj.SearchState_Ongoing, 0)
		return []wpobj.WPObj{progress}
	}
	results := m.resultsMap.Get(handleId)
	progress := makeProgress(handleId, wpobj.SearchState_Done, len(results))
	rtn := make([]wpobj.WPObj, 0, len(results)+1)
	rtn = append(rtn, progress)
	rtn = append(rtn, results...)
	return rtn
}

// HasHandle reports whether a handle id is live.
func (m *Manager) HasHandle(handleId string) bool {
	_, found := m.statusMap.GetEx(handleId)
	return found
}

// RunSweeper deletes handles idle for longer than the TTL.  It blocks
// until ctx is done; callers run it in its own goroutine.  With a zero
// TTL it returns immediately and handles live forever.
func (m *Manager) RunSweeper(ctx context.Context) {
	if m.ttl == 0 {
		return
	}
	ticker := time.NewTicker(m.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	for _, handleId := range m.touchedMap.Keys() {
		touched, found := m.touchedMap.GetEx(handleId)
		if !found {
			continue
		}
		if now.Sub(touched) < m.ttl {
			continue
		}
		// never reap a still-running search
		if m.statusMap.Get(handleId) == Status_Running {
			continue
		}
		m.statusMap.Delete(handleId)
		m.resultsMap.Delete(handleId)
		m.touchedMap.Delete(handleId)
		log.Printf("[search] expired handle %s\n", handleId)
	}
}

func makeProgress(handleId string, state string, numResults int) *wpobj.WPLmodSearchProgress {
	progress := &wpobj.WPLmodSearchProgress{State: state}
	progress.ID = handleId
	progress.Title = "Search"
	progress.Objects = numResults
	return progress
}

func dedupeAndBound(results []wpobj.WPObj) []wpobj.WPObj {
	seen := make(map[string]bool)
	var rtn []wpobj.WPObj
	for _, obj := range results {
		title := wpobj.Base(obj).Title
		if seen[title] {
			continue
		}
		seen[title] = true
		rtn = append(rtn, obj)
		if len(rtn) >= MaxResults {
			break
		}
	}
	return rtn
}

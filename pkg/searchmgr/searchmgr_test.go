// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package searchmgr

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/wayportdev/wayport/pkg/wpobj"
)

func makeSoftware(title string) wpobj.WPObj {
	sw := &wpobj.WPLmodSoftware{}
	sw.ID = "/" + title
	sw.Title = title
	return sw
}

func waitForDone(t *testing.T, mgr *Manager, handleId string) []wpobj.WPObj {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		objs := mgr.Poll(handleId)
		if len(objs) > 0 {
			if progress, ok := objs[0].(*wpobj.WPLmodSearchProgress); ok && progress.State == wpobj.SearchState_Done {
				return objs
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("search %s never completed", handleId)
	return nil
}

func TestSearchLifecycle(t *testing.T) {
	mgr := MakeManager()
	release := make(chan struct{})
	worker := func(ctx context.Context, term string, recursive bool) []wpobj.WPObj {
		<-release
		return []wpobj.WPObj{makeSoftware("python"), makeSoftware("python3")}
	}
	handle := mgr.StartSearch(context.Background(), "python", true, worker)
	if handle.ID == "" {
		t.Fatalf("handle has no id")
	}
	if handle.SearchString != "python" || !handle.Recursive {
		t.Errorf("handle does not echo the request: %+v", handle)
	}
	objs := mgr.Poll(handle.ID)
	if len(objs) != 1 {
		t.Fatalf("expected single progress object while running, got %d", len(objs))
	}
	progress, ok := objs[0].(*wpobj.WPLmodSearchProgress)
	if !ok || progress.State != wpobj.SearchState_Ongoing {
		t.Fatalf("expected ongoing progress, got %#v", objs[0])
	}
	if progress.ID != handle.ID {
		t.Errorf("progress id %s != handle id %s", progress.ID, handle.ID)
	}
	close(release)
	done := waitForDone(t, mgr, handle.ID)
	if len(done) != 3 {
		t.Fatalf("expected progress + 2 results, got %d objects", len(done))
	}
	doneProgress := done[0].(*wpobj.WPLmodSearchProgress)
	if doneProgress.Objects != 2 {
		t.Errorf("done progress reports %d objects, expected 2", doneProgress.Objects)
	}
	// completed payload must stay deterministic across polls
	again := mgr.Poll(handle.ID)
	if len(again) != 3 {
		t.Errorf("second done poll returned %d objects", len(again))
	}
}

func TestUnknownHandle(t *testing.T) {
	mgr := MakeManager()
	if objs := mgr.Poll("no-such-handle"); len(objs) != 0 {
		t.Errorf("unknown handle returned %d objects", len(objs))
	}
}

func TestDedupeAndBound(t *testing.T) {
	var input []wpobj.WPObj
	for i := 0; i < 3; i++ {
		input = append(input, makeSoftware("dup"))
	}
	for i := 0; i < MaxResults+20; i++ {
		input = append(input, makeSoftware(fmt.Sprintf("sw-%d", i)))
	}
	out := dedupeAndBound(input)
	if len(out) != MaxResults {
		t.Fatalf("expected %d results, got %d", MaxResults, len(out))
	}
	seen := make(map[string]bool)
	for _, obj := range out {
		title := wpobj.Base(obj).Title
		if seen[title] {
			t.Errorf("duplicate title %s survived", title)
		}
		seen[title] = true
	}
}

func TestSweepSkipsRunning(t *testing.T) {
	mgr := MakeManager()
	mgr.SetTTL(1 * time.Millisecond)
	release := make(chan struct{})
	worker := func(ctx context.Context, term string, recursive bool) []wpobj.WPObj {
		<-release
		return nil
	}
	handle := mgr.StartSearch(context.Background(), "x", false, worker)
	time.Sleep(10 * time.Millisecond)
	mgr.sweep(time.Now())
	if !mgr.HasHandle(handle.ID) {
		t.Fatalf("running search was swept")
	}
	close(release)
	waitForDone(t, mgr, handle.ID)
	time.Sleep(10 * time.Millisecond)
	mgr.sweep(time.Now())
	if mgr.HasHandle(handle.ID) {
		t.Errorf("idle done handle survived the sweep")
	}
}

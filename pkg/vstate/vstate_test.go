// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package vstate

import (
	"sync/atomic"
	"testing"
	"time"
)

func testColumns(t *testing.T, width int, zoom float64, expected int) {
	t.Helper()
	got := Columns(width, DefaultLayout, zoom)
	if got != expected {
		t.Errorf("Columns(%d, zoom=%v) = %d, expected %d", width, zoom, got, expected)
	}
}

func TestColumns(t *testing.T) {
	// (1000 - 24) / (96 + 18) = 8
	testColumns(t, 1000, 1.0, 8)
	// tiny viewport still renders one column
	testColumns(t, 10, 1.0, 1)
	testColumns(t, 0, 1.0, 1)
	// zooming in reduces the column count: (1000-24)/(192+18) = 4
	testColumns(t, 1000, 2.0, 4)
}

func TestClampZoom(t *testing.T) {
	if got := ClampZoom(0.1); got != MinZoom {
		t.Errorf("ClampZoom(0.1) = %v", got)
	}
	if got := ClampZoom(9.0); got != MaxZoom {
		t.Errorf("ClampZoom(9.0) = %v", got)
	}
	if got := ClampZoom(1.25); got != 1.25 {
		t.Errorf("ClampZoom(1.25) = %v", got)
	}
}

func TestReflowCoalescing(t *testing.T) {
	state := MakeState()
	var reflowCount int64
	var lastCols int64
	state.OnReflow(func(columns int) {
		atomic.AddInt64(&reflowCount, 1)
		atomic.StoreInt64(&lastCols, int64(columns))
	})
	// a storm of resize events within the coalescing window
	for w := 500; w <= 1000; w += 50 {
		state.ViewportResized(w)
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(4 * ReflowCoalesceDelay)
	if got := atomic.LoadInt64(&reflowCount); got != 1 {
		t.Errorf("reflow ran %d times, expected 1", got)
	}
	if got := atomic.LoadInt64(&lastCols); got != 8 {
		t.Errorf("final column count = %d, expected 8", got)
	}
	if state.Columns() != 8 {
		t.Errorf("state.Columns() = %d", state.Columns())
	}
}

func TestStateDefaults(t *testing.T) {
	state := MakeState()
	if state.Mode() != ViewMode_Icon {
		t.Errorf("default mode = %v", state.Mode())
	}
	if !state.DetailsVisible() {
		t.Errorf("details should default visible")
	}
	state.SetMode(ViewMode_Table)
	if state.Mode() != ViewMode_Table {
		t.Errorf("mode did not switch")
	}
	state.SetZoom(99)
	if state.Zoom() != MaxZoom {
		t.Errorf("zoom not clamped on set: %v", state.Zoom())
	}
	state.SetSplitterSizes([]int{500, 300})
	sizes := state.SplitterSizes()
	if len(sizes) != 2 || sizes[0] != 500 {
		t.Errorf("splitter sizes = %v", sizes)
	}
}

// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package vstate holds the view-state contract between the navigation
// core and the rendering shell: icon/table mode, zoom, details
// visibility, and the icon-grid reflow math.  No widgets live here.
package vstate

import (
	"sync"
	"time"
)

type ViewMode string

const (
	ViewMode_Icon  ViewMode = "icon"
	ViewMode_Table ViewMode = "table"
)

const (
	MinZoom     = 0.5
	MaxZoom     = 3.0
	DefaultZoom = 1.0
)

// ReflowCoalesceDelay batches viewport-resize events before a reflow is
// recomputed.
const ReflowCoalesceDelay = 50 * time.Millisecond

// LayoutSpec is the icon-grid geometry at zoom 1.0.
type LayoutSpec struct {
	Margins   int
	TileWidth int
	Spacing   int
}

var DefaultLayout = LayoutSpec{Margins: 24, TileWidth: 96, Spacing: 18}

// Columns computes the icon-grid column count for a viewport width:
// floor((width - margins) / (tile + spacing)), minimum 1.
func Columns(viewportWidth int, spec LayoutSpec, zoom float64) int {
	tile := int(float64(spec.TileWidth) * zoom)
	if tile <= 0 {
		tile = 1
	}
	cols := (viewportWidth - spec.Margins) / (tile + spec.Spacing)
	if cols < 1 {
		return 1
	}
	return cols
}

// ClampZoom bounds a zoom level to the persistable range.
func ClampZoom(zoom float64) float64 {
	if zoom < MinZoom {
		return MinZoom
	}
	if zoom > MaxZoom {
		return MaxZoom
	}
	return zoom
}

// State is the shared view state.  All accessors are safe for use from
// the UI thread and background listeners.
type State struct {
	lock              *sync.Mutex
	mode              ViewMode
	zoom              float64
	detailsVisible    bool
	splitterSizes     []int
	detailsSavedWidth int
	layout            LayoutSpec
	viewportWidth     int
	columns           int
	reflowTimer       *time.Timer
	onReflow          func(columns int)
}

func MakeState() *State {
	return &State{
		lock:           &sync.Mutex{},
		mode:           ViewMode_Icon,
		zoom:           DefaultZoom,
		detailsVisible: true,
		layout:         DefaultLayout,
		columns:        1,
	}
}

func (s *State) Mode() ViewMode {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.mode
}

func (s *State) SetMode(mode ViewMode) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.mode = mode
}

func (s *State) Zoom() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.zoom
}

// SetZoom clamps and stores the zoom, then schedules a reflow (tile size
// depends on zoom).
func (s *State) SetZoom(zoom float64) {
	s.lock.Lock()
	s.zoom = ClampZoom(zoom)
	width := s.viewportWidth
	s.lock.Unlock()
	if width > 0 {
		s.ViewportResized(width)
	}
}

func (s *State) DetailsVisible() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.detailsVisible
}

func (s *State) SetDetailsVisible(visible bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.detailsVisible = visible
}

func (s *State) SplitterSizes() []int {
	s.lock.Lock()
	defer s.lock.Unlock()
	rtn := make([]int, len(s.splitterSizes))
	copy(rtn, s.splitterSizes)
	return rtn
}

func (s *State) SetSplitterSizes(sizes []int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.splitterSizes = append([]int(nil), sizes...)
}

func (s *State) DetailsSavedWidth() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.detailsSavedWidth
}

func (s *State) SetDetailsSavedWidth(width int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.detailsSavedWidth = width
}

// OnReflow registers the callback invoked (from a timer goroutine) after
// coalesced resize events settle.
func (s *State) OnReflow(fn func(columns int)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.onReflow = fn
}

// Columns returns the last computed column count.
func (s *State) Columns() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.columns
}

// ViewportResized records a resize event.  Reflow is coalesced over
// ReflowCoalesceDelay so a drag-resize storm computes once.
func (s *State) ViewportResized(width int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.viewportWidth = width
	if s.reflowTimer != nil {
		s.reflowTimer.Stop()
	}
	s.reflowTimer = time.AfterFunc(ReflowCoalesceDelay, s.reflowNow)
}

func (s *State) reflowNow() {
	s.lock.Lock()
	cols := Columns(s.viewportWidth, s.layout, s.zoom)
	s.columns = cols
	fn := s.onReflow
	s.lock.Unlock()
	if fn != nil {
		fn(cols)
	}
}

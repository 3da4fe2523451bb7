// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeSolidPng(t *testing.T, path string, w int, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCompositeBadgeGeometry(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 48, 64))
	badge := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			badge.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	composed := compositeBadge(base, badge).(*image.RGBA)
	// badge size is min(48,64)/1.75 = 27, anchored bottom-right with no margin
	shorter := 48
	size := int(float64(shorter) / badgeDivisor)
	inX, inY := 48-1, 64-1
	if r, _, _, a := composed.At(inX, inY).RGBA(); r == 0 || a == 0 {
		t.Errorf("bottom-right corner not covered by badge")
	}
	outX, outY := 48-size-1, 64-size-1
	if r, _, _, _ := composed.At(outX, outY).RGBA(); r != 0 {
		t.Errorf("badge bled outside its target rect")
	}
	// top-left is untouched base
	if _, _, _, a := composed.At(0, 0).RGBA(); a != 0 {
		t.Errorf("base pixels modified outside the badge area")
	}
}

func TestCompositeBadgeMinimumSize(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 1, 1))
	badge := image.NewRGBA(image.Rect(0, 0, 8, 8))
	// must not panic on a degenerate base; size clamps to 1
	compositeBadge(base, badge)
}

func TestIconCatalogReload(t *testing.T) {
	resourcesDir := t.TempDir()
	writeSolidPng(t, filepath.Join(resourcesDir, "A.png"), 4, 4, color.RGBA{A: 255})
	catalog := MakeIconCatalog(resourcesDir, nil)
	if err := catalog.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(catalog.Entries()) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(catalog.Entries()))
	}
	writeSolidPng(t, filepath.Join(resourcesDir, "B.png"), 4, 4, color.RGBA{A: 255})
	if err := catalog.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	entries := catalog.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", len(entries))
	}
	data, found := catalog.Lookup("./resources/B.png")
	if !found {
		t.Fatalf("new icon not in catalog")
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		t.Errorf("catalog data is not base64: %v", err)
	}
	// non-png files are ignored
	os.WriteFile(filepath.Join(resourcesDir, "notes.txt"), []byte("x"), 0o644)
	catalog.Load()
	if len(catalog.Entries()) != 2 {
		t.Errorf("non-png file entered the catalog")
	}
}

// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/wayportdev/wayport/pkg/panichandler"
	"github.com/wayportdev/wayport/pkg/wire"
)

// IconPrefix is how icon filenames appear on the wire; providers never
// inline icon bytes into object listings.
const IconPrefix = "./resources/"

const badgeIconName = "IDCard.png"

// badgeDivisor sizes the overlay glyph relative to the shorter side of
// the base icon.
const badgeDivisor = 1.75

// IconCatalog assembles the provider's GetInfo icon payload from its
// resources directory: every *.png in case-insensitive filename order,
// base64 encoded, plus optional _IDCard badge composites.  The catalog
// reloads when the directory changes.
type IconCatalog struct {
	lock         *sync.Mutex
	resourcesDir string
	customize    []string
	entries      []IconEntry
}

type IconEntry = wire.IconEntry

func MakeIconCatalog(resourcesDir string, customize []string) *IconCatalog {
	return &IconCatalog{
		lock:         &sync.Mutex{},
		resourcesDir: resourcesDir,
		customize:    customize,
	}
}

// Entries returns a copy of the current catalog in wire form.
func (c *IconCatalog) Entries() []IconEntry {
	c.lock.Lock()
	defer c.lock.Unlock()
	rtn := make([]IconEntry, len(c.entries))
	copy(rtn, c.entries)
	return rtn
}

// Lookup returns the base64 data for a catalog filename.
func (c *IconCatalog) Lookup(filename string) (string, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, e := range c.entries {
		if e.Filename == filename {
			return e.Data, true
		}
	}
	return "", false
}

// Load (re)builds the catalog from disk.  A missing resources directory
// is not an error: GetInfo must still return a valid shape.
func (c *IconCatalog) Load() error {
	if c.resourcesDir == "" {
		return nil
	}
	dirEntries, err := os.ReadDir(c.resourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading resources dir: %w", err)
	}
	var names []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(de.Name()), ".png") {
			names = append(names, de.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	raw := make(map[string][]byte)
	var entries []IconEntry
	for _, name := range names {
		barr, err := os.ReadFile(filepath.Join(c.resourcesDir, name))
		if err != nil {
			log.Printf("[provider] reading icon %s: %v\n", name, err)
			continue
		}
		raw[name] = barr
		entries = append(entries, IconEntry{
			Filename: IconPrefix + name,
			Data:     base64.StdEncoding.EncodeToString(barr),
		})
	}
	entries = append(entries, c.badgeEntries(raw)...)
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries = entries
	return nil
}

// badgeEntries composites the IDCard glyph onto each customized base
// icon, producing <base>_IDCard.png variants.
func (c *IconCatalog) badgeEntries(raw map[string][]byte) []IconEntry {
	if len(c.customize) == 0 {
		return nil
	}
	badgeBytes, found := raw[badgeIconName]
	if !found {
		return nil
	}
	badgeImg, err := decodePng(badgeBytes)
	if err != nil {
		log.Printf("[provider] decoding badge icon: %v\n", err)
		return nil
	}
	var rtn []IconEntry
	for _, baseName := range c.customize {
		baseBytes, found := raw[baseName]
		if !found {
			continue
		}
		baseImg, err := decodePng(baseBytes)
		if err != nil {
			log.Printf("[provider] decoding icon %s: %v\n", baseName, err)
			continue
		}
		composed := compositeBadge(baseImg, badgeImg)
		var buf bytes.Buffer
		if err := png.Encode(&buf, composed); err != nil {
			continue
		}
		stem := strings.TrimSuffix(baseName, filepath.Ext(baseName))
		rtn = append(rtn, IconEntry{
			Filename: IconPrefix + stem + "_IDCard.png",
			Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		})
	}
	return rtn
}

// Watch reloads the catalog when the resources directory changes, until
// ctx is done.
func (c *IconCatalog) Watch(ctx context.Context) {
	defer func() {
		panichandler.PanicHandler("provider:iconWatch", recover())
	}()
	if c.resourcesDir == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[provider] icon watcher: %v\n", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(c.resourcesDir); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := c.Load(); err != nil {
				log.Printf("[provider] icon reload: %v\n", err)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func decodePng(barr []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(barr))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// compositeBadge alpha-composites the badge onto the base icon's
// bottom-right corner with no margin.  The badge is scaled to
// max(1, min(w,h)/1.75) of the base's shorter side.
func compositeBadge(baseImg image.Image, badgeImg image.Image) image.Image {
	bounds := baseImg.Bounds()
	composed := image.NewRGBA(bounds)
	draw.Draw(composed, bounds, baseImg, bounds.Min, draw.Src)
	shorter := bounds.Dx()
	if bounds.Dy() < shorter {
		shorter = bounds.Dy()
	}
	size := int(float64(shorter) / badgeDivisor)
	if size < 1 {
		size = 1
	}
	scaled := scaleNearest(badgeImg, size, size)
	target := image.Rect(bounds.Max.X-size, bounds.Max.Y-size, bounds.Max.X, bounds.Max.Y)
	draw.Draw(composed, target, scaled, image.Point{}, draw.Over)
	return composed
}

// scaleNearest is a nearest-neighbor resampler; icon glyphs are small
// enough that filtering quality does not matter here.
func scaleNearest(src image.Image, width int, height int) image.Image {
	srcBounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		srcY := srcBounds.Min.Y + y*srcBounds.Dy()/height
		for x := 0; x < width; x++ {
			srcX := srcBounds.Min.X + x*srcBounds.Dx()/width
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}

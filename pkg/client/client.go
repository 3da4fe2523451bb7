// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client implements the browser side of the provider protocol:
// one TCP connection per RPC, a single request line out, a single
// response line back.  Transport failures degrade to empty listings —
// the browser never crashes on a dead provider.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wayportdev/wayport/pkg/util/ds"
	"github.com/wayportdev/wayport/pkg/wire"
	"github.com/wayportdev/wayport/pkg/wpobj"
)

// DefaultTimeout covers connect plus read for one RPC.
const DefaultTimeout = 10 * time.Second

// Endpoint identifies one provider.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string { return e.Addr() }

// Client is the session-wide transport.  The icon cache is merged across
// every endpoint contacted during the session and never evicted;
// last-writer-wins on identical filenames.
type Client struct {
	timeout   time.Duration
	iconCache *ds.SyncMap[string] // filename -> base64 png
	rootNames *ds.SyncMap[string] // endpoint addr -> RootName
	infoGroup singleflight.Group
}

func MakeClient() *Client {
	return &Client{
		timeout:   DefaultTimeout,
		iconCache: ds.MakeSyncMap[string](),
		rootNames: ds.MakeSyncMap[string](),
	}
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// roundTrip performs one request/response cycle.  The returned map is the
// decoded response line.
func (c *Client) roundTrip(ctx context.Context, ep Endpoint, payload map[string]any) (map[string]any, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", ep.Addr(), err)
	}
	defer conn.Close()
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)
	if err := wire.WriteJsonLine(conn, payload); err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", ep.Addr(), err)
	}
	line, err := wire.ReadResponseLine(conn)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", ep.Addr(), err)
	}
	var rtn map[string]any
	if err := json.Unmarshal(line, &rtn); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", ep.Addr(), err)
	}
	return rtn, nil
}

// GetInfo fetches the provider's root name and merges its icon catalog
// into the session cache.  Concurrent calls for the same endpoint are
// deduplicated.
func (c *Client) GetInfo(ctx context.Context, ep Endpoint) (string, error) {
	rtn, err, _ := c.infoGroup.Do(ep.Addr(), func() (any, error) {
		if rootName, found := c.rootNames.GetEx(ep.Addr()); found {
			return rootName, nil
		}
		resp, err := c.roundTrip(ctx, ep, map[string]any{"method": wire.Method_GetInfo})
		if err != nil {
			return "", err
		}
		rootName, _ := resp["RootName"].(string)
		c.mergeIcons(resp)
		if rootName != "" {
			c.rootNames.Set(ep.Addr(), rootName)
		}
		return rootName, nil
	})
	if err != nil {
		return "", err
	}
	return rtn.(string), nil
}

func (c *Client) mergeIcons(resp map[string]any) {
	iconsRaw, ok := resp["icons"].([]any)
	if !ok {
		return
	}
	for _, entryRaw := range iconsRaw {
		entry, ok := entryRaw.(map[string]any)
		if !ok {
			continue
		}
		filename, _ := entry["filename"].(string)
		data, _ := entry["data"].(string)
		if filename == "" || data == "" {
			continue
		}
		c.iconCache.Set(filename, data)
	}
}

// GetRootObjects lists the provider root.  Failures yield an empty
// listing.
func (c *Client) GetRootObjects(ctx context.Context, ep Endpoint) []wpobj.WPObj {
	resp, err := c.roundTrip(ctx, ep, map[string]any{"method": wire.Method_GetRootObjects})
	if err != nil {
		log.Printf("[client] GetRootObjects %s: %v\n", ep.Addr(), err)
		return nil
	}
	return objectsFromResponse(resp)
}

// GetObjects lists the objects under an id (base path plus command
// tokens).  Failures yield an empty listing.
func (c *Client) GetObjects(ctx context.Context, ep Endpoint, objectId string) []wpobj.WPObj {
	resp, err := c.roundTrip(ctx, ep, map[string]any{"method": wire.Method_GetObjects, "id": objectId})
	if err != nil {
		log.Printf("[client] GetObjects %s %q: %v\n", ep.Addr(), objectId, err)
		return nil
	}
	return objectsFromResponse(resp)
}

// Search issues a Search request.  searchHandle is nil on the initial
// call; polls pass the exact handle map previously returned.
func (c *Client) Search(ctx context.Context, ep Endpoint, objectId string, searchTerm string, recursive bool, searchHandle map[string]any) []wpobj.WPObj {
	payload := map[string]any{
		"method":    wire.Method_Search,
		"id":        objectId,
		"search":    searchTerm,
		"recursive": recursive,
	}
	if searchHandle != nil {
		payload["search_handle"] = searchHandle
	}
	resp, err := c.roundTrip(ctx, ep, payload)
	if err != nil {
		log.Printf("[client] Search %s %q: %v\n", ep.Addr(), searchTerm, err)
		return nil
	}
	return objectsFromResponse(resp)
}

func objectsFromResponse(resp map[string]any) []wpobj.WPObj {
	if errMsg, ok := resp["error"].(string); ok && errMsg != "" {
		log.Printf("[client] provider error: %s\n", errMsg)
		return nil
	}
	objsRaw, ok := resp["objects"].([]any)
	if !ok {
		return nil
	}
	maps := make([]map[string]any, 0, len(objsRaw))
	for _, objRaw := range objsRaw {
		if m, ok := objRaw.(map[string]any); ok {
			maps = append(maps, m)
		}
	}
	return wpobj.FromJsonMapList(maps)
}

// IconData returns the cached base64 payload for a catalog filename.
func (c *Client) IconData(filename string) (string, bool) {
	return c.iconCache.GetEx(filename)
}

// ResolveIcon turns an object's icon reference into PNG bytes: catalog
// filenames resolve through the session cache; legacy inline base64
// strings are accepted as a fallback.
func (c *Client) ResolveIcon(iconRef string) ([]byte, bool) {
	if iconRef == "" {
		return nil, false
	}
	if data, found := c.iconCache.GetEx(iconRef); found {
		barr, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, false
		}
		return barr, true
	}
	barr, err := base64.StdEncoding.DecodeString(iconRef)
	if err != nil {
		return nil, false
	}
	return barr, true
}

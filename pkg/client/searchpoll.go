// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/wayportdev/wayport/pkg/wpobj"
)

// SearchPollInterval is the cadence for polling an async search handle.
const SearchPollInterval = 1 * time.Second

// SearchUpdateFn receives each poll result.  results is nil while the
// search is still running; the final call carries state "done" and the
// full result set.
type SearchUpdateFn func(progress *wpobj.WPLmodSearchProgress, results []wpobj.WPObj)

// RunSearch drives a full async search: issue the initial request, then
// poll with the exact handle object carried forward until the provider
// reports done or ctx is cancelled (navigation away stops the polling;
// the server-side handle is left to its own lifetime).
func (c *Client) RunSearch(ctx context.Context, ep Endpoint, objectId string, searchTerm string, recursive bool, onUpdate SearchUpdateFn) error {
	initial := c.Search(ctx, ep, objectId, searchTerm, recursive, nil)
	if len(initial) == 0 {
		return fmt.Errorf("provider at %s does not support search", ep.Addr())
	}
	handle, ok := initial[0].(*wpobj.WPLmodSearchHandle)
	if !ok {
		// synchronous provider: the listing is already the result set
		if onUpdate != nil {
			onUpdate(nil, initial)
		}
		return nil
	}
	handleMap, err := wpobj.ToJsonMap(handle)
	if err != nil {
		return fmt.Errorf("serializing search handle: %w", err)
	}
	ticker := time.NewTicker(SearchPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		polled := c.Search(ctx, ep, objectId, searchTerm, recursive, handleMap)
		progress, results := splitSearchPayload(polled)
		if progress == nil {
			// unknown handle (expired server-side); treat as done-empty
			if onUpdate != nil {
				onUpdate(nil, nil)
			}
			return nil
		}
		if onUpdate != nil {
			onUpdate(progress, results)
		}
		if progress.State == wpobj.SearchState_Done {
			return nil
		}
	}
}

func splitSearchPayload(objs []wpobj.WPObj) (*wpobj.WPLmodSearchProgress, []wpobj.WPObj) {
	var progress *wpobj.WPLmodSearchProgress
	var results []wpobj.WPObj
	for _, obj := range objs {
		if p, ok := obj.(*wpobj.WPLmodSearchProgress); ok && progress == nil {
			progress = p
			continue
		}
		results = append(results, obj)
	}
	return progress, results
}

// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package nav

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wayportdev/wayport/pkg/pathcmd"
	"github.com/wayportdev/wayport/pkg/wpobj"
)

// Deep-link path language:
//
//	/[host:port]/SEG/<Cmd:...>/SEG/[host:port]/...
//
// An [h:p] segment switches the endpoint; the first one in a link
// replaces the session root, later ones push synthetic crumbs at the new
// provider's root.  Command tokens append to the current remote id.
// Normal segments traverse by matching children of the current listing.
// A trailing [openaction] / <OpenAction> fires the last matched object's
// open action.

var endpointTokenRe = regexp.MustCompile(`^\[([^\[\]:]+):(\d+)\]$`)

const openActionSegment = "[openaction]"

// ParseEndpointToken parses an [h:p] segment.
func ParseEndpointToken(seg string) (string, int, bool) {
	m := endpointTokenRe.FindStringSubmatch(seg)
	if m == nil {
		return "", 0, false
	}
	port, err := strconv.Atoi(m[2])
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, false
	}
	return m[1], port, true
}

// NavigateToPath walks a deep link.  The first [h:p] token re-roots the
// session at that endpoint; segments before any endpoint token are
// walked from the session's current entry.  Traversal stops quietly on
// the first segment that matches no child; the session is left at the
// deepest point reached.
func (s *Session) NavigateToPath(ctx context.Context, path string) error {
	if len(s.stack) == 0 {
		return fmt.Errorf("session not started")
	}
	segs := splitSegments(path)
	var lastMatched wpobj.WPObj
	seenEndpoint := false
	for _, seg := range segs {
		if host, port, ok := ParseEndpointToken(seg); ok {
			if !seenEndpoint {
				if err := s.resetRoot(ctx, host, port); err != nil {
					return err
				}
			} else {
				if err := s.PushEndpoint(ctx, host, port); err != nil {
					return err
				}
			}
			seenEndpoint = true
			lastMatched = nil
			continue
		}
		if seg == openActionSegment {
			return s.performTrailingOpenAction(ctx, lastMatched)
		}
		if tok, ok := pathcmd.ParseToken(seg); ok {
			if tok.Cmd == pathcmd.Cmd_OpenAction {
				return s.performTrailingOpenAction(ctx, lastMatched)
			}
			if err := s.pushCommandToken(ctx, tok); err != nil {
				return err
			}
			lastMatched = nil
			continue
		}
		matched := s.matchChild(seg)
		if matched == nil {
			return nil
		}
		lastMatched = matched
		if err := s.Activate(ctx, matched); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) performTrailingOpenAction(ctx context.Context, obj wpobj.WPObj) error {
	if obj == nil {
		return nil
	}
	return s.PerformOpenAction(ctx, obj)
}

// pushCommandToken appends a command token to the current remote id and
// loads the resulting listing.
func (s *Session) pushCommandToken(ctx context.Context, tok pathcmd.Token) error {
	current := s.Current()
	remoteId := pathcmd.JoinTokens(current.RemoteID, []pathcmd.Token{tok})
	entry := NavEntry{
		ID:       tok.String(),
		Title:    HumanizeTitle(tok.String(), remoteId),
		Host:     current.Host,
		Port:     current.Port,
		RemoteID: remoteId,
	}
	s.stack = append(s.stack, entry)
	s.setObjects(s.client.GetObjects(ctx, entry.Endpoint(), entry.RemoteID))
	return nil
}

// matchChild finds a child of the current listing by id suffix "/seg" or
// exact title.
func (s *Session) matchChild(seg string) wpobj.WPObj {
	for _, obj := range s.objects {
		if strings.HasSuffix(wpobj.Base(obj).ID, "/"+seg) {
			return obj
		}
	}
	for _, obj := range s.objects {
		if wpobj.Base(obj).Title == seg {
			return obj
		}
	}
	return nil
}

// ShortcutPath serializes the current nav state into the minimum-length
// deep link that reproduces it: endpoint tokens only where the endpoint
// changes, command tokens where a crumb's remote id ends in one, titles
// (or the last id segment) otherwise.
func (s *Session) ShortcutPath() string {
	var parts []string
	for i, entry := range s.stack {
		if i == 0 {
			parts = append(parts, fmt.Sprintf("[%s:%d]", entry.Host, entry.Port))
			continue
		}
		prev := s.stack[i-1]
		if entry.Host != prev.Host || entry.Port != prev.Port {
			parts = append(parts, fmt.Sprintf("[%s:%d]", entry.Host, entry.Port))
			continue
		}
		parts = append(parts, shortcutSegment(entry))
	}
	return "/" + strings.Join(parts, "/")
}

func shortcutSegment(entry NavEntry) string {
	segs := strings.Split(strings.Trim(entry.RemoteID, "/"), "/")
	if len(segs) > 0 {
		last := segs[len(segs)-1]
		if _, ok := pathcmd.ParseToken(last); ok {
			return last
		}
		if entry.Title != "" {
			return entry.Title
		}
		return last
	}
	return entry.Title
}

func splitSegments(path string) []string {
	var rtn []string
	for _, seg := range strings.Split(strings.Trim(strings.TrimSpace(path), "/"), "/") {
		if seg != "" {
			rtn = append(rtn, seg)
		}
	}
	return rtn
}

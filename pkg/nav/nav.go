// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package nav implements the browser navigation core: the nav stack,
// cross-provider host switching, deep-link (de)serialization, and the
// selection/details state machine.  Rendering is a collaborator; this
// package owns the state.
package nav

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/wayportdev/wayport/pkg/client"
	"github.com/wayportdev/wayport/pkg/pathcmd"
	"github.com/wayportdev/wayport/pkg/wpobj"
)

// NavEntry is one breadcrumb.  ID is the user-facing path token;
// RemoteID is the provider-local path requested when re-entering.  They
// differ when a command token was applied or a host switch landed at "/".
type NavEntry struct {
	ID       string
	Title    string
	Host     string
	Port     int
	RemoteID string
}

func (e NavEntry) Endpoint() client.Endpoint {
	return client.Endpoint{Host: e.Host, Port: e.Port}
}

// Session is the navigation state machine.  Depth 0 of the stack is the
// session root (host, port, root name).  Selection is cleared on every
// listing mutation.
type Session struct {
	client    *client.Client
	stack     []NavEntry
	objects   []wpobj.WPObj
	selection string
	actions   ActionHandlers
}

func MakeSession(c *client.Client, actions ActionHandlers) *Session {
	if c == nil {
		c = client.MakeClient()
	}
	actions.fillDefaults()
	return &Session{client: c, actions: actions}
}

func (s *Session) Client() *client.Client { return s.client }

// Start roots the session at the given endpoint and loads its listing.
func (s *Session) Start(ctx context.Context, host string, port int) error {
	return s.resetRoot(ctx, host, port)
}

func (s *Session) resetRoot(ctx context.Context, host string, port int) error {
	ep := client.Endpoint{Host: host, Port: port}
	rootName, err := s.client.GetInfo(ctx, ep)
	if err != nil {
		log.Printf("[nav] GetInfo %s: %v\n", ep.Addr(), err)
	}
	if rootName == "" {
		rootName = "Root"
	}
	s.stack = []NavEntry{{ID: "/", Title: rootName, Host: host, Port: port, RemoteID: "/"}}
	s.setObjects(s.client.GetRootObjects(ctx, ep))
	return nil
}

// Current returns the deepest nav entry.
func (s *Session) Current() NavEntry {
	if len(s.stack) == 0 {
		return NavEntry{}
	}
	return s.stack[len(s.stack)-1]
}

func (s *Session) Stack() []NavEntry {
	rtn := make([]NavEntry, len(s.stack))
	copy(rtn, s.stack)
	return rtn
}

func (s *Session) Depth() int { return len(s.stack) }

// Breadcrumbs returns the titles rendered across the top: the root name
// followed by each pushed entry's title.
func (s *Session) Breadcrumbs() []string {
	rtn := make([]string, 0, len(s.stack))
	for _, entry := range s.stack {
		rtn = append(rtn, entry.Title)
	}
	return rtn
}

// Objects returns the current listing.
func (s *Session) Objects() []wpobj.WPObj {
	return s.objects
}

func (s *Session) setObjects(objs []wpobj.WPObj) {
	s.objects = objs
	s.selection = ""
}

// Select marks an object in the current listing as selected; the details
// panel follows.  Selecting an id not in the listing clears selection.
func (s *Session) Select(objectId string) {
	for _, obj := range s.objects {
		if wpobj.Base(obj).ID == objectId {
			s.selection = objectId
			return
		}
	}
	s.selection = ""
}

func (s *Session) SelectionId() string { return s.selection }

// SelectedObject returns the selected object, or nil.
func (s *Session) SelectedObject() wpobj.WPObj {
	if s.selection == "" {
		return nil
	}
	for _, obj := range s.objects {
		if wpobj.Base(obj).ID == s.selection {
			return obj
		}
	}
	return nil
}

// Details returns the property map shown in the details panel for the
// current selection (nil when nothing is selected).
func (s *Session) Details() map[string]any {
	obj := s.SelectedObject()
	if obj == nil {
		return nil
	}
	m, err := wpobj.ToJsonMap(obj)
	if err != nil {
		return nil
	}
	return m
}

// Activate applies the activation rules to an object in the current
// listing: endpoint-switch open actions first, then enterable objects,
// then other open actions.  Anything else is a no-op.
func (s *Session) Activate(ctx context.Context, obj wpobj.WPObj) error {
	base := wpobj.Base(obj)
	if action := findAction(base.OpenAction, "objectbrowser"); action != nil {
		host, port := endpointFromAction(action, s.Current())
		return s.PushEndpoint(ctx, host, port)
	}
	if base.Objects > 0 {
		return s.push(ctx, base.ID, base.Title)
	}
	if len(base.OpenAction) > 0 {
		return s.PerformOpenAction(ctx, obj)
	}
	return nil
}

// push appends a nav entry on the current endpoint and loads its
// listing.
func (s *Session) push(ctx context.Context, objectId string, title string) error {
	current := s.Current()
	entry := NavEntry{
		ID:       objectId,
		Title:    HumanizeTitle(title, objectId),
		Host:     current.Host,
		Port:     current.Port,
		RemoteID: objectId,
	}
	s.stack = append(s.stack, entry)
	s.setObjects(s.client.GetObjects(ctx, entry.Endpoint(), entry.RemoteID))
	return nil
}

// PushEndpoint switches providers mid-path: a synthetic crumb at the new
// provider's root, titled by its RootName.
func (s *Session) PushEndpoint(ctx context.Context, host string, port int) error {
	ep := client.Endpoint{Host: host, Port: port}
	rootName, err := s.client.GetInfo(ctx, ep)
	if err != nil {
		log.Printf("[nav] GetInfo %s: %v\n", ep.Addr(), err)
	}
	if rootName == "" {
		rootName = ep.Addr()
	}
	entry := NavEntry{
		ID:       fmt.Sprintf("[%s:%d]", host, port),
		Title:    rootName,
		Host:     host,
		Port:     port,
		RemoteID: "/",
	}
	s.stack = append(s.stack, entry)
	s.setObjects(s.client.GetRootObjects(ctx, ep))
	return nil
}

// NavigateToIndex is the breadcrumb click: truncate the stack to depth
// index and reload that entry's listing.
func (s *Session) NavigateToIndex(ctx context.Context, index int) error {
	if len(s.stack) == 0 {
		return fmt.Errorf("session not started")
	}
	if index < 0 || index >= len(s.stack) {
		return fmt.Errorf("nav index %d out of range", index)
	}
	s.stack = s.stack[:index+1]
	entry := s.Current()
	if entry.RemoteID == "/" || entry.RemoteID == "" {
		s.setObjects(s.client.GetRootObjects(ctx, entry.Endpoint()))
	} else {
		s.setObjects(s.client.GetObjects(ctx, entry.Endpoint(), entry.RemoteID))
	}
	return nil
}

// Reload refetches the current listing (selection clears with it).
func (s *Session) Reload(ctx context.Context) error {
	return s.NavigateToIndex(ctx, len(s.stack)-1)
}

// HumanizeTitle converts a trailing command token into breadcrumb prose:
// "Group by P" / "Show P = V".  Other ids keep the given title.
func HumanizeTitle(title string, remoteId string) string {
	segs := strings.Split(strings.Trim(remoteId, "/"), "/")
	if len(segs) == 0 {
		return title
	}
	tok, ok := pathcmd.ParseToken(segs[len(segs)-1])
	if !ok {
		return title
	}
	switch tok.Cmd {
	case pathcmd.Cmd_GroupBy:
		return fmt.Sprintf("Group by %s", tok.Prop)
	case pathcmd.Cmd_Show:
		return fmt.Sprintf("Show %s = %s", tok.Prop, tok.Value)
	}
	return title
}

func findAction(actions []wpobj.ActionMap, name string) wpobj.ActionMap {
	for _, action := range actions {
		if action.GetString("action") == name {
			return action
		}
	}
	return nil
}

func endpointFromAction(action wpobj.ActionMap, current NavEntry) (string, int) {
	host := action.GetString("hostname")
	if host == "" {
		host = action.GetString("host")
	}
	if host == "" {
		host = current.Host
	}
	port := action.GetInt("port", current.Port)
	return host, port
}

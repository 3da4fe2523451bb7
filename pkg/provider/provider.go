// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package provider implements the server side of the object protocol: a
// TCP listener that answers one line-delimited JSON request per
// connection, dispatching to a pluggable Backend.
package provider

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/wayportdev/wayport/pkg/panichandler"
	"github.com/wayportdev/wayport/pkg/pathcmd"
	"github.com/wayportdev/wayport/pkg/searchmgr"
	"github.com/wayportdev/wayport/pkg/wire"
	"github.com/wayportdev/wayport/pkg/wpobj"
)

// Backend is the minimal surface a concrete provider implements.  base is
// always a bare path ("/" for the root) with command tokens already
// stripped by the engine.
type Backend interface {
	RootName() string
	ListObjects(ctx context.Context, base string) ([]wpobj.WPObj, error)
}

// RootLister lets a backend return a root payload that differs from
// ListObjects(ctx, "/") — e.g. Slurm appends its "My Jobs" group.
type RootLister interface {
	RootObjects(ctx context.Context) ([]wpobj.WPObj, error)
}

// MyLister handles the <ShowMy:USER> shortcut.
type MyLister interface {
	MyObjects(ctx context.Context, user string) ([]wpobj.WPObj, error)
}

// Searcher opts a backend into the async search sub-protocol.
type Searcher interface {
	SearchWorker() searchmgr.WorkerFn
}

// PathOverrider lets a backend claim specific ids before the command
// engine runs (the Lmod provider serves its loaded-software group this
// way).  handled=false falls through to normal evaluation.
type PathOverrider interface {
	OverridePath(ctx context.Context, objectId string) (objs []wpobj.WPObj, handled bool, err error)
}

// GroupByWhitelister restricts which properties may be grouped on.
// Disallowed properties evaluate to empty listings, never errors.
type GroupByWhitelister interface {
	GroupByAllowed(prop string) bool
}

// ServerOpts configures one provider server instance.
type ServerOpts struct {
	ResourcesDir      string
	CustomizeIcons    []string // base icon filenames that get _IDCard badge variants
	GroupIconFilename string   // icon for synthesized group objects
	ReadTimeout       time.Duration
	SearchTTL         time.Duration
}

const DefaultReadTimeout = 30 * time.Second
const DefaultGroupIcon = "./resources/Group.png"

// Server owns the per-instance state: the backend, the icon catalog, and
// the search manager.  Request handlers are stateless over the server
// beyond these guarded members.
type Server struct {
	opts      ServerOpts
	backend   Backend
	icons     *IconCatalog
	searchMgr *searchmgr.Manager
}

func MakeServer(backend Backend, opts ServerOpts) *Server {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.GroupIconFilename == "" {
		opts.GroupIconFilename = DefaultGroupIcon
	}
	server := &Server{
		opts:      opts,
		backend:   backend,
		icons:     MakeIconCatalog(opts.ResourcesDir, opts.CustomizeIcons),
		searchMgr: searchmgr.MakeManager(),
	}
	if opts.SearchTTL != 0 {
		server.searchMgr.SetTTL(opts.SearchTTL)
	}
	return server
}

// SearchManager exposes the search state (tests and embedding callers).
func (s *Server) SearchManager() *searchmgr.Manager { return s.searchMgr }

// ListenAndServe binds addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	log.Printf("[provider] %s listening on %s\n", s.backend.RootName(), listener.Addr())
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done.  Each
// connection is handled in its own goroutine: read one request line,
// write one response line, close.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if err := s.icons.Load(); err != nil {
		log.Printf("[provider] icon catalog load: %v\n", err)
	}
	go s.icons.Watch(ctx)
	go s.searchMgr.RunSweeper(ctx)
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		panichandler.PanicHandler("provider:handleConn", recover())
	}()
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.opts.ReadTimeout))
	line, err := wire.ReadRequestLine(conn)
	if err != nil {
		return
	}
	req, err := wire.ParseRequest(line)
	if err != nil {
		wire.WriteError(conn, wire.ErrInvalidJSON)
		return
	}
	payload := s.dispatch(ctx, req)
	if err := wire.WriteJsonLine(conn, payload); err != nil {
		log.Printf("[provider] writing response: %v\n", err)
	}
}

// dispatch produces the response payload for one request.  All failures
// map to an error payload or an empty listing on the same response line.
func (s *Server) dispatch(ctx context.Context, req *wire.Request) any {
	switch req.Method {
	case wire.Method_GetInfo:
		return wire.InfoResponse{RootName: s.backend.RootName(), Icons: s.icons.Entries()}
	case wire.Method_GetRootObjects:
		objs, err := s.rootObjects(ctx)
		if err != nil {
			return wire.ErrorResponse{Error: fmt.Sprintf("Failed to serve objects: %v", err)}
		}
		return makeObjectsResponse(objs)
	case wire.Method_GetObjects:
		objectId, found := req.ObjectId()
		if !found {
			return wire.ErrorResponse{Error: wire.ErrMissingId}
		}
		objs, err := s.objectsForPath(ctx, objectId)
		if err != nil {
			return wire.ErrorResponse{Error: fmt.Sprintf("Failed to list objects: %v", err)}
		}
		return makeObjectsResponse(objs)
	case wire.Method_Search:
		return makeObjectsResponse(s.handleSearch(ctx, req))
	}
	return wire.ErrorResponse{Error: wire.ErrUnknownMessage}
}

func (s *Server) rootObjects(ctx context.Context) ([]wpobj.WPObj, error) {
	if rootLister, ok := s.backend.(RootLister); ok {
		return rootLister.RootObjects(ctx)
	}
	return s.backend.ListObjects(ctx, "/")
}

func (s *Server) objectsForPath(ctx context.Context, objectId string) ([]wpobj.WPObj, error) {
	trimmed := strings.TrimSpace(objectId)
	if trimmed == "" || trimmed == "/" {
		return s.rootObjects(ctx)
	}
	if overrider, ok := s.backend.(PathOverrider); ok {
		objs, handled, err := overrider.OverridePath(ctx, trimmed)
		if handled {
			return objs, err
		}
	}
	if user, ok := parseShowMy(trimmed); ok {
		if myLister, ok := s.backend.(MyLister); ok {
			return myLister.MyObjects(ctx, user)
		}
		return nil, nil
	}
	opts := pathcmd.EvalOpts{GroupIconFilename: s.opts.GroupIconFilename}
	if whitelister, ok := s.backend.(GroupByWhitelister); ok {
		opts.GroupByAllowed = whitelister.GroupByAllowed
	}
	return pathcmd.BuildObjectsForPath(trimmed, func(base string) ([]wpobj.WPObj, error) {
		return s.backend.ListObjects(ctx, base)
	}, opts)
}

func parseShowMy(objectId string) (string, bool) {
	base, tokens := pathcmd.ParseId(objectId)
	if base != "/" || len(tokens) != 1 {
		return "", false
	}
	if tokens[0].Cmd != pathcmd.Cmd_ShowMy {
		return "", false
	}
	return tokens[0].Value, true
}

func (s *Server) handleSearch(ctx context.Context, req *wire.Request) []wpobj.WPObj {
	searcher, ok := s.backend.(Searcher)
	if !ok {
		return nil
	}
	if handleMap := req.GetMap("search_handle"); handleMap != nil {
		handleId, _ := handleMap["id"].(string)
		if handleId == "" {
			return nil
		}
		return s.searchMgr.Poll(handleId)
	}
	searchTerm := req.GetString("search")
	recursive := req.GetBool("recursive")
	handle := s.searchMgr.StartSearch(ctx, searchTerm, recursive, searcher.SearchWorker())
	return []wpobj.WPObj{handle}
}

func makeObjectsResponse(objs []wpobj.WPObj) wire.ObjectsResponse {
	maps := make([]map[string]any, 0, len(objs))
	for _, obj := range objs {
		m, err := wpobj.ToJsonMap(obj)
		if err != nil {
			log.Printf("[provider] dropping unserializable %q object: %v\n", obj.GetClass(), err)
			continue
		}
		maps = append(maps, m)
	}
	return wire.ObjectsResponse{Objects: maps}
}

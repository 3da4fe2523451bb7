// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package nav

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/wayportdev/wayport/pkg/client"
	"github.com/wayportdev/wayport/pkg/provider"
	"github.com/wayportdev/wayport/pkg/wpobj"
)

// clusterBackend is a minimal partition/job tree for nav tests.
type clusterBackend struct {
	rootName string
}

func (b *clusterBackend) RootName() string { return b.rootName }

func makeNavJob(jobId string, userId string, state string) wpobj.WPObj {
	job := &wpobj.WPSlurmJob{UserId: &userId, JobState: &state}
	job.ID = "/hopper/" + jobId
	job.Title = jobId
	return job
}

func (b *clusterBackend) RootObjects(ctx context.Context) ([]wpobj.WPObj, error) {
	part := &wpobj.WPSlurmPartition{}
	part.ID = "/hopper"
	part.Title = "hopper"
	part.Objects = 3
	leaf := &wpobj.WPObject{}
	leaf.ID = "/empty"
	leaf.Title = "empty"
	return []wpobj.WPObj{part, leaf}, nil
}

func (b *clusterBackend) ListObjects(ctx context.Context, base string) ([]wpobj.WPObj, error) {
	if strings.Trim(base, "/") == "hopper" {
		return []wpobj.WPObj{
			makeNavJob("1", "alice", "Running"),
			makeNavJob("2", "bob", "Pending"),
			makeNavJob("3", "carol", "Running"),
		}, nil
	}
	rootObjs, _ := b.RootObjects(ctx)
	return rootObjs[:1], nil
}

func startNavServer(t *testing.T, backend provider.Backend) (string, int) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server := provider.MakeServer(backend, provider.ServerOpts{})
	go server.Serve(ctx, listener)
	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func startedSession(t *testing.T, host string, port int) *Session {
	t.Helper()
	session := MakeSession(client.MakeClient(), ActionHandlers{})
	if err := session.Start(context.Background(), host, port); err != nil {
		t.Fatalf("session start: %v", err)
	}
	return session
}

func TestSessionStart(t *testing.T) {
	host, port := startNavServer(t, &clusterBackend{rootName: "Test Cluster"})
	session := startedSession(t, host, port)
	crumbs := session.Breadcrumbs()
	if len(crumbs) != 1 || crumbs[0] != "Test Cluster" {
		t.Errorf("breadcrumbs = %v", crumbs)
	}
	if len(session.Objects()) != 2 {
		t.Errorf("root listing has %d objects", len(session.Objects()))
	}
}

func TestActivateAndBreadcrumbTruncate(t *testing.T) {
	host, port := startNavServer(t, &clusterBackend{rootName: "Test Cluster"})
	session := startedSession(t, host, port)
	ctx := context.Background()
	var partition wpobj.WPObj
	for _, obj := range session.Objects() {
		if wpobj.Base(obj).Title == "hopper" {
			partition = obj
		}
	}
	session.Select(wpobj.Base(partition).ID)
	if session.SelectionId() == "" {
		t.Fatalf("selection did not take")
	}
	if err := session.Activate(ctx, partition); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if session.SelectionId() != "" {
		t.Errorf("selection survived a listing change")
	}
	if got := session.Breadcrumbs(); len(got) != 2 || got[1] != "hopper" {
		t.Errorf("breadcrumbs after activate = %v", got)
	}
	if len(session.Objects()) != 3 {
		t.Errorf("expected 3 jobs, got %d", len(session.Objects()))
	}
	// activating a leaf with no openaction is a no-op
	depth := session.Depth()
	leaf := &wpobj.WPObject{}
	leaf.ID = "/leafless"
	if err := session.Activate(ctx, leaf); err != nil {
		t.Fatalf("leaf activate: %v", err)
	}
	if session.Depth() != depth {
		t.Errorf("no-op activation changed the stack")
	}
	if err := session.NavigateToIndex(ctx, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if got := session.Breadcrumbs(); len(got) != 1 {
		t.Errorf("breadcrumbs after truncate = %v", got)
	}
	if len(session.Objects()) != 2 {
		t.Errorf("root reload has %d objects", len(session.Objects()))
	}
}

func TestHumanizeTitle(t *testing.T) {
	if got := HumanizeTitle("x", "/part/<GroupBy:userid>"); got != "Group by userid" {
		t.Errorf("HumanizeTitle groupby = %q", got)
	}
	if got := HumanizeTitle("x", "/part/<Show:jobstate:Running>"); got != "Show jobstate = Running" {
		t.Errorf("HumanizeTitle show = %q", got)
	}
	if got := HumanizeTitle("plain", "/part/seg"); got != "plain" {
		t.Errorf("HumanizeTitle plain = %q", got)
	}
}

func TestCrossProviderDeepLink(t *testing.T) {
	h1, p1 := startNavServer(t, &clusterBackend{rootName: "First Cluster"})
	h2, p2 := startNavServer(t, &clusterBackend{rootName: "Second Cluster"})
	session := startedSession(t, h1, p1)
	ctx := context.Background()
	link := "/[" + h1 + ":" + strconv.Itoa(p1) + "]/hopper/<Show:jobstate:Running>/[" + h2 + ":" + strconv.Itoa(p2) + "]/"
	if err := session.NavigateToPath(ctx, link); err != nil {
		t.Fatalf("deep link: %v", err)
	}
	stack := session.Stack()
	if len(stack) != 4 {
		t.Fatalf("stack depth = %d, expected 4 (%+v)", len(stack), stack)
	}
	if stack[0].Title != "First Cluster" || stack[0].Port != p1 {
		t.Errorf("bad root crumb: %+v", stack[0])
	}
	if stack[1].RemoteID != "/hopper" {
		t.Errorf("bad traversal crumb: %+v", stack[1])
	}
	if stack[2].Title != "Show jobstate = Running" || stack[2].RemoteID != "/hopper/<Show:jobstate:Running>" {
		t.Errorf("bad command crumb: %+v", stack[2])
	}
	if stack[3].Port != p2 || stack[3].RemoteID != "/" || stack[3].Title != "Second Cluster" {
		t.Errorf("bad endpoint crumb: %+v", stack[3])
	}
	if session.Current().Port != p2 {
		t.Errorf("endpoint did not switch")
	}
	// the synthetic crumb shows the second provider's root listing
	if len(session.Objects()) != 2 {
		t.Errorf("second root listing has %d objects", len(session.Objects()))
	}
}

func TestCommandTokenFilterListing(t *testing.T) {
	host, port := startNavServer(t, &clusterBackend{rootName: "Test Cluster"})
	session := startedSession(t, host, port)
	if err := session.NavigateToPath(context.Background(), "/hopper/<Show:jobstate:Running>"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	objs := session.Objects()
	if len(objs) != 2 {
		t.Fatalf("filtered listing has %d objects, expected 2", len(objs))
	}
}

func TestTraversalStopsOnMismatch(t *testing.T) {
	host, port := startNavServer(t, &clusterBackend{rootName: "Test Cluster"})
	session := startedSession(t, host, port)
	if err := session.NavigateToPath(context.Background(), "/hopper/nosuchjob/deeper"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	// stops at the deepest matched point (hopper's job "nosuchjob" does not exist)
	if got := session.Depth(); got != 2 {
		t.Errorf("stack depth = %d, expected 2", got)
	}
}

func TestShortcutRoundTrip(t *testing.T) {
	h1, p1 := startNavServer(t, &clusterBackend{rootName: "First Cluster"})
	h2, p2 := startNavServer(t, &clusterBackend{rootName: "Second Cluster"})
	session := startedSession(t, h1, p1)
	ctx := context.Background()
	link := "/[" + h1 + ":" + strconv.Itoa(p1) + "]/hopper/<Show:jobstate:Running>/[" + h2 + ":" + strconv.Itoa(p2) + "]/"
	if err := session.NavigateToPath(ctx, link); err != nil {
		t.Fatalf("deep link: %v", err)
	}
	built := session.ShortcutPath()
	replay := startedSession(t, h1, p1)
	if err := replay.NavigateToPath(ctx, built); err != nil {
		t.Fatalf("replaying %q: %v", built, err)
	}
	orig, copied := session.Stack(), replay.Stack()
	if len(orig) != len(copied) {
		t.Fatalf("replay depth %d != %d (link %q)", len(copied), len(orig), built)
	}
	for i := range orig {
		if orig[i].Host != copied[i].Host || orig[i].Port != copied[i].Port || orig[i].RemoteID != copied[i].RemoteID {
			t.Errorf("crumb %d differs: %+v vs %+v", i, orig[i], copied[i])
		}
	}
}

func TestActivateObjectBrowserAction(t *testing.T) {
	h1, p1 := startNavServer(t, &clusterBackend{rootName: "First Cluster"})
	h2, p2 := startNavServer(t, &clusterBackend{rootName: "Second Cluster"})
	session := startedSession(t, h1, p1)
	portal := &wpobj.WPObject{}
	portal.ID = "/portal"
	portal.Title = "portal"
	portal.OpenAction = []wpobj.ActionMap{{"action": "objectbrowser", "hostname": h2, "port": float64(p2)}}
	if err := session.Activate(context.Background(), portal); err != nil {
		t.Fatalf("activate portal: %v", err)
	}
	current := session.Current()
	if current.Port != p2 || current.RemoteID != "/" {
		t.Errorf("endpoint switch failed: %+v", current)
	}
	if current.Title != "Second Cluster" {
		t.Errorf("synthetic crumb title = %q", current.Title)
	}
}

func TestBrowserOpenAction(t *testing.T) {
	host, port := startNavServer(t, &clusterBackend{rootName: "Test Cluster"})
	var openedURL string
	handlers := ActionHandlers{
		OpenURL: func(url string) error { openedURL = url; return nil },
	}
	session := MakeSession(client.MakeClient(), handlers)
	if err := session.Start(context.Background(), host, port); err != nil {
		t.Fatalf("start: %v", err)
	}
	obj := &wpobj.WPNocoRecord{}
	obj.ID = "/r/1"
	obj.OpenAction = []wpobj.ActionMap{{"action": "browser", "url": "https://example.org/x"}}
	if err := session.PerformOpenAction(context.Background(), obj); err != nil {
		t.Fatalf("open action: %v", err)
	}
	if openedURL != "https://example.org/x" {
		t.Errorf("url not opened: %q", openedURL)
	}
}

func TestTerminalContextAction(t *testing.T) {
	host, port := startNavServer(t, &clusterBackend{rootName: "Test Cluster"})
	var clipboardText, terminalCmd string
	handlers := ActionHandlers{
		Clipboard:    func(text string) error { clipboardText = text; return nil },
		OpenTerminal: func(command string) error { terminalCmd = command; return nil },
	}
	session := MakeSession(client.MakeClient(), handlers)
	if err := session.Start(context.Background(), host, port); err != nil {
		t.Fatalf("start: %v", err)
	}
	action := wpobj.ActionMap{"title": "Show Resource Usage", "action": "terminal", "command": "./usage.sh 42; exit"}
	if err := session.DispatchContextAction(context.Background(), action); err != nil {
		t.Fatalf("context action: %v", err)
	}
	if clipboardText != "./usage.sh 42; exit" || terminalCmd != clipboardText {
		t.Errorf("terminal action not dispatched: clip=%q cmd=%q", clipboardText, terminalCmd)
	}
}

func TestParseEndpointToken(t *testing.T) {
	host, port, ok := ParseEndpointToken("[10.0.0.5:8890]")
	if !ok || host != "10.0.0.5" || port != 8890 {
		t.Errorf("ParseEndpointToken = %q %d %v", host, port, ok)
	}
	for _, bad := range []string{"[h:p]", "[:80]", "plain", "[h:99999]", "[openaction]"} {
		if _, _, ok := ParseEndpointToken(bad); ok {
			t.Errorf("ParseEndpointToken(%q) unexpectedly succeeded", bad)
		}
	}
}

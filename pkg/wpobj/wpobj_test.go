// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package wpobj

import (
	"encoding/json"
	"testing"
)

func testRoundTrip(t *testing.T, obj WPObj) map[string]any {
	t.Helper()
	m, err := ToJsonMap(obj)
	if err != nil {
		t.Fatalf("ToJsonMap error: %v", err)
	}
	back, err := FromJsonMap(m)
	if err != nil {
		t.Fatalf("FromJsonMap error: %v", err)
	}
	m2, err := ToJsonMap(back)
	if err != nil {
		t.Fatalf("ToJsonMap (2nd) error: %v", err)
	}
	// json.Marshal sorts map keys, giving a canonical comparison form
	b1, _ := json.Marshal(m)
	b2, _ := json.Marshal(m2)
	if string(b1) != string(b2) {
		t.Errorf("round trip mismatch:\n  first:  %s\n  second: %s", b1, b2)
	}
	return m
}

func TestSlurmJobRoundTrip(t *testing.T) {
	user := "alice"
	state := "Running"
	job := &WPSlurmJob{UserId: &user, JobState: &state, NodeCount: 4, Cpus: 16}
	job.ID = "/hopper/12345"
	job.Title = "12345"
	job.Icon = IconRef("./resources/Job.png")
	m := testRoundTrip(t, job)
	if m["class"] != "WPSlurmJob" {
		t.Errorf("wrong class: %v", m["class"])
	}
	if m["userid"] != "alice" {
		t.Errorf("wrong userid: %v", m["userid"])
	}
}

func TestNullIconPreserved(t *testing.T) {
	obj := &WPObject{}
	obj.ID = "/x"
	obj.Title = "X"
	m, err := ToJsonMap(obj)
	if err != nil {
		t.Fatalf("ToJsonMap error: %v", err)
	}
	v, found := m["icon"]
	if !found {
		t.Fatalf("icon key missing from wire map")
	}
	if v != nil {
		t.Errorf("expected null icon, got %v", v)
	}
}

func TestUnknownClassPassthrough(t *testing.T) {
	payload := map[string]any{
		"class":   "WPFoo",
		"id":      "/x",
		"title":   "X",
		"icon":    nil,
		"objects": float64(0),
		"bar":     float64(42),
	}
	obj, err := FromJsonMap(payload)
	if err != nil {
		t.Fatalf("FromJsonMap error: %v", err)
	}
	gen, ok := obj.(*WPGenericObject)
	if !ok {
		t.Fatalf("expected WPGenericObject, got %T", obj)
	}
	if gen.GetClass() != "WPFoo" {
		t.Errorf("wrong class: %s", gen.GetClass())
	}
	m, err := ToJsonMap(obj)
	if err != nil {
		t.Fatalf("ToJsonMap error: %v", err)
	}
	if m["bar"] != float64(42) {
		t.Errorf("extras lost: bar=%v", m["bar"])
	}
	if m["class"] != "WPFoo" {
		t.Errorf("wrong class on wire: %v", m["class"])
	}
}

func TestKnownClassKeepsUnknownExtras(t *testing.T) {
	payload := map[string]any{
		"class":     "WPSlurmJob",
		"id":        "/p/1",
		"title":     "1",
		"icon":      nil,
		"objects":   float64(0),
		"userid":    "bob",
		"sitequota": "gold", // not a modeled field
	}
	obj, err := FromJsonMap(payload)
	if err != nil {
		t.Fatalf("FromJsonMap error: %v", err)
	}
	job, ok := obj.(*WPSlurmJob)
	if !ok {
		t.Fatalf("expected WPSlurmJob, got %T", obj)
	}
	if job.UserId == nil || *job.UserId != "bob" {
		t.Errorf("typed field not decoded")
	}
	m, _ := ToJsonMap(obj)
	if m["sitequota"] != "gold" {
		t.Errorf("unknown extra dropped: %v", m["sitequota"])
	}
}

func TestRoundTripAllRegisteredClasses(t *testing.T) {
	for class := range classToType {
		obj, err := FromJsonMap(map[string]any{
			"class":   class,
			"id":      "/t",
			"title":   "t",
			"icon":    "./resources/T.png",
			"objects": float64(3),
		})
		if err != nil {
			t.Errorf("class %s: %v", class, err)
			continue
		}
		if obj.GetClass() != class {
			t.Errorf("class %s decoded as %s", class, obj.GetClass())
		}
		testRoundTrip(t, obj)
	}
}

func testStringify(t *testing.T, v any, expected string, expectedOk bool) {
	t.Helper()
	s, ok := Stringify(v)
	if ok != expectedOk {
		t.Errorf("Stringify(%v) ok=%v, expected %v", v, ok, expectedOk)
		return
	}
	if ok && s != expected {
		t.Errorf("Stringify(%v) = %q, expected %q", v, s, expected)
	}
}

func TestStringify(t *testing.T) {
	testStringify(t, nil, "", false)
	testStringify(t, "abc", "abc", true)
	testStringify(t, float64(12), "12", true)
	testStringify(t, float64(1.5), "1.5", true)
	testStringify(t, true, "true", true)
	testStringify(t, 7, "7", true)
}

func TestSearchMatch(t *testing.T) {
	user := "Alice"
	job := &WPSlurmJob{UserId: &user}
	job.ID = "/hopper/99"
	job.Title = "99"
	if !SearchMatch(job, "all", "alice") {
		t.Errorf("case-insensitive all-match failed")
	}
	if !SearchMatch(job, "userid", "lic") {
		t.Errorf("single-field substring match failed")
	}
	if SearchMatch(job, "jobstate", "alice") {
		t.Errorf("matched against null field")
	}
	if SearchMatch(job, "userid", "zzz") {
		t.Errorf("false positive")
	}
}

// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package slurmbackend

import (
	"testing"
)

func testBackend() *Backend {
	return &Backend{userId: "alice", cmdTimeout: DefaultCmdTimeout}
}

func TestParseJobLine(t *testing.T) {
	line := "12345|bob|4|RUNNING|hopper|train-model|16|64G|1-00:00:00|proj42|02:30:00|None|1013|gpu:2"
	job := testBackend().parseJobLine(line)
	if job == nil {
		t.Fatalf("line did not parse")
	}
	if job.ID != "/hopper/12345" || job.Title != "12345" {
		t.Errorf("bad identity: id=%s title=%s", job.ID, job.Title)
	}
	if job.UserId == nil || *job.UserId != "bob" {
		t.Errorf("bad userid")
	}
	if job.JobState == nil || *job.JobState != "Running" {
		t.Errorf("state not normalized: %v", job.JobState)
	}
	if job.NodeCount != 4 || job.Cpus != 16 {
		t.Errorf("bad counts: nodes=%d cpus=%d", job.NodeCount, job.Cpus)
	}
	if job.Priority == nil || *job.Priority != 1013 {
		t.Errorf("bad priority")
	}
	if job.JobArray {
		t.Errorf("plain job flagged as array")
	}
	// 1-00:00:00 minus 02:30:00 leaves 21:30:00
	if job.RemainingRuntime == nil || *job.RemainingRuntime != "21:30:00" {
		t.Errorf("remaining runtime = %v", job.RemainingRuntime)
	}
	if job.Icon == nil || *job.Icon != "./resources/Job.png" {
		t.Errorf("foreign job should get the plain icon: %v", job.Icon)
	}
}

func TestParseJobLineOwnJob(t *testing.T) {
	line := "7_3|alice|1|PENDING|debug|quick|1|4G|00:30:00|proj|00:00:00|Priority|99|N/A"
	job := testBackend().parseJobLine(line)
	if job == nil {
		t.Fatalf("line did not parse")
	}
	if !job.JobArray {
		t.Errorf("array job not detected")
	}
	if job.Icon == nil || *job.Icon != "./resources/Job_IDCard.png" {
		t.Errorf("own job should get the badged icon: %v", job.Icon)
	}
	if job.JobState == nil || *job.JobState != "Pending" {
		t.Errorf("state = %v", job.JobState)
	}
}

func TestParseJobLineRejects(t *testing.T) {
	b := testBackend()
	for _, line := range []string{"", "   ", "too|few|fields", "|u|1|R|p|n|1|m|t|a|e|r|q|g"} {
		if job := b.parseJobLine(line); job != nil {
			t.Errorf("line %q unexpectedly parsed: %+v", line, job)
		}
	}
}

func TestScrambledUsers(t *testing.T) {
	b := &Backend{userId: "alice", scrambleUsers: true, cmdTimeout: DefaultCmdTimeout}
	line := "1|alice|1|RUNNING|p|n|1|m|t|a|e|r|1|g"
	job := b.parseJobLine(line)
	if job == nil {
		t.Fatalf("line did not parse")
	}
	if *job.UserId != "nyvpr" {
		t.Errorf("user not scrambled: %s", *job.UserId)
	}
	// the scrambled owner still matches the scrambled caller
	if *job.Icon != "./resources/Job_IDCard.png" {
		t.Errorf("ownership lost under scrambling")
	}
}

func testSlurmSeconds(t *testing.T, input string, expected int) {
	t.Helper()
	if got := slurmSeconds(input); got != expected {
		t.Errorf("slurmSeconds(%q) = %d, expected %d", input, got, expected)
	}
}

func TestSlurmSeconds(t *testing.T) {
	testSlurmSeconds(t, "", 0)
	testSlurmSeconds(t, "00:30:00", 1800)
	testSlurmSeconds(t, "30:00", 1800)
	testSlurmSeconds(t, "45", 45)
	testSlurmSeconds(t, "1-00:00:00", 86400)
	testSlurmSeconds(t, "2-01:02:03", 2*86400+3723)
	testSlurmSeconds(t, "UNLIMITED", 0)
}

func TestRemainingRuntimeFormats(t *testing.T) {
	remaining, ok := remainingRuntime("2-00:00:00", "00:00:01")
	if !ok || remaining != "1-23:59:59" {
		t.Errorf("remaining = %q %v", remaining, ok)
	}
	remaining, ok = remainingRuntime("01:00:00", "02:00:00")
	if !ok || remaining != "00:00:00" {
		t.Errorf("elapsed past the limit should clamp to zero: %q", remaining)
	}
	if _, ok := remainingRuntime("", "00:01:00"); ok {
		t.Errorf("missing time limit should not produce a remaining value")
	}
}

func TestRot13(t *testing.T) {
	if got := rot13("alice"); got != "nyvpr" {
		t.Errorf("rot13(alice) = %q", got)
	}
	if got := rot13(rot13("Big-Red_200")); got != "Big-Red_200" {
		t.Errorf("rot13 is not an involution")
	}
}

func TestGroupByWhitelist(t *testing.T) {
	b := testBackend()
	if !b.GroupByAllowed("userid") || !b.GroupByAllowed("jobstate") {
		t.Errorf("expected core properties to be groupable")
	}
	if b.GroupByAllowed("gres") {
		t.Errorf("unexpected groupable property")
	}
}

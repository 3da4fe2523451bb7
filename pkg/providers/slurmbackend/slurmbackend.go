// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package slurmbackend exposes a Slurm cluster as an object tree:
// partitions at the root, jobs beneath them, and a "My Jobs" group that
// maps to the <ShowMy:user> shortcut.  All data comes from the scheduler
// CLIs (sinfo/scontrol/squeue) under context timeouts.
package slurmbackend

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"os/user"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wayportdev/wayport/pkg/wpobj"
)

const (
	partitionIconName = "./resources/Partition.png"
	jobIconName       = "./resources/Job.png"
	myJobIconName     = "./resources/Job_IDCard.png"
	personIconName    = "./resources/IDCard.png"
)

// squeueFormat columns: jobid|user|nodes|state|partition|name|cpus|mem|
// timelimit|account|elapsed|reason|priority|gres
const squeueFormat = "%i|%u|%D|%T|%P|%j|%C|%m|%l|%a|%M|%r|%Q|%b"
const squeueFieldCount = 14

const DefaultCmdTimeout = 30 * time.Second

var groupableProps = map[string]bool{
	"userid":    true,
	"jobstate":  true,
	"partition": true,
	"account":   true,
	"nodecount": true,
	"cpus":      true,
	"jobarray":  true,
}

type Backend struct {
	scrambleUsers bool
	cmdTimeout    time.Duration
	userId        string
}

func MakeBackend(scrambleUsers bool) *Backend {
	userId := ""
	if u, err := user.Current(); err == nil {
		userId = strings.TrimSpace(u.Username)
	}
	return &Backend{
		scrambleUsers: scrambleUsers,
		cmdTimeout:    DefaultCmdTimeout,
		userId:        userId,
	}
}

func (b *Backend) RootName() string { return "Slurm Batch System" }

func (b *Backend) GroupByAllowed(prop string) bool { return groupableProps[prop] }

// RootObjects lists every partition plus the "My Jobs" group.
func (b *Backend) RootObjects(ctx context.Context) ([]wpobj.WPObj, error) {
	partitions := b.getPartitions(ctx)
	defaultPartition := b.getDefaultPartition(ctx)
	rtn := make([]wpobj.WPObj, 0, len(partitions)+1)
	for _, part := range partitions {
		rtn = append(rtn, b.makePartitionObject(ctx, part, part == defaultPartition))
	}
	myUser := b.userId
	if b.scrambleUsers {
		myUser = rot13(myUser)
	}
	group := &wpobj.WPGroup{}
	group.ID = fmt.Sprintf("/<ShowMy:%s>", myUser)
	group.Title = "My Jobs"
	group.Icon = wpobj.IconRef(personIconName)
	group.Objects = b.countMyJobs(ctx)
	rtn = append(rtn, group)
	return rtn, nil
}

// ListObjects returns the leaf stream for a base path: partitions at
// "/", jobs within the partition named by the first segment.
func (b *Backend) ListObjects(ctx context.Context, base string) ([]wpobj.WPObj, error) {
	part := firstSegment(base)
	if part == "" {
		partitions := b.getPartitions(ctx)
		defaultPartition := b.getDefaultPartition(ctx)
		rtn := make([]wpobj.WPObj, 0, len(partitions))
		for _, name := range partitions {
			rtn = append(rtn, b.makePartitionObject(ctx, name, name == defaultPartition))
		}
		return rtn, nil
	}
	return b.getJobsForPartition(ctx, part), nil
}

// MyObjects implements the <ShowMy:user> shortcut via squeue --me.
func (b *Backend) MyObjects(ctx context.Context, userArg string) ([]wpobj.WPObj, error) {
	out, err := b.runCmd(ctx, "squeue", "-h", "--me", "-o", squeueFormat)
	if err != nil {
		log.Printf("[slurm] squeue --me: %v\n", err)
		return nil, nil
	}
	var rtn []wpobj.WPObj
	for _, line := range strings.Split(out, "\n") {
		job := b.parseJobLine(line)
		if job == nil {
			continue
		}
		job.ContextMenu = []wpobj.ActionMap{
			{"title": "Show Resource Usage", "action": "terminal", "command": "./show_job_usage.py " + job.Title + "; exit"},
		}
		rtn = append(rtn, job)
	}
	return rtn, nil
}

func (b *Backend) makePartitionObject(ctx context.Context, name string, isDefault bool) *wpobj.WPSlurmPartition {
	part := &wpobj.WPSlurmPartition{IsDefault: isDefault}
	part.ID = "/" + name
	part.Title = name
	part.Icon = wpobj.IconRef(partitionIconName)
	part.Objects = len(b.getJobsForPartition(ctx, name))
	if out, err := b.runCmd(ctx, "scontrol", "show", "partition", name); err == nil {
		for _, line := range strings.Split(out, "\n") {
			if v, ok := cutAfter(line, "MaxTime="); ok {
				part.MaxTime = &v
			}
			if v, ok := cutAfter(line, "TotalNodes="); ok {
				part.TotalNodes = &v
			}
			if strings.Contains(strings.ToLower(line), "gres") {
				part.HasGpus = true
			}
		}
	}
	running, pending := b.countPartitionJobStates(ctx, name)
	part.RunningJobs = &running
	part.PendingJobs = &pending
	return part
}

func (b *Backend) countPartitionJobStates(ctx context.Context, name string) (int, int) {
	out, err := b.runCmd(ctx, "squeue", "-h", "-p", name, "-o", "%T")
	if err != nil {
		return 0, 0
	}
	running, pending := 0, 0
	for _, line := range strings.Split(out, "\n") {
		state := strings.TrimSpace(line)
		if state == "" {
			continue
		}
		if state == "RUNNING" {
			running++
		} else {
			pending++
		}
	}
	return running, pending
}

// getPartitions prefers scontrol's structured output, falling back to
// sinfo.
func (b *Backend) getPartitions(ctx context.Context) []string {
	if out, err := b.runCmd(ctx, "scontrol", "show", "partition", "-o"); err == nil {
		var names []string
		for _, line := range strings.Split(out, "\n") {
			for _, token := range strings.Fields(line) {
				if name, ok := strings.CutPrefix(token, "PartitionName="); ok {
					names = append(names, name)
					break
				}
			}
		}
		if len(names) > 0 {
			return sortedUnique(names)
		}
	}
	out, err := b.runCmd(ctx, "sinfo", "-h", "-o", "%P")
	if err != nil {
		return nil
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSuffix(strings.TrimSpace(line), "*")
		if name != "" {
			names = append(names, name)
		}
	}
	return sortedUnique(names)
}

func (b *Backend) getDefaultPartition(ctx context.Context) string {
	out, err := b.runCmd(ctx, "sinfo", "-h", "-o", "%P")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(trimmed, "*") {
			return strings.TrimSuffix(trimmed, "*")
		}
	}
	return ""
}

func (b *Backend) countMyJobs(ctx context.Context) int {
	out, err := b.runCmd(ctx, "squeue", "-h", "--me", "-o", "%i")
	if err != nil {
		return 0
	}
	count := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

func (b *Backend) getJobsForPartition(ctx context.Context, partition string) []wpobj.WPObj {
	part := strings.TrimPrefix(partition, "/")
	var out string
	var err error
	if part == "" {
		out, err = b.runCmd(ctx, "squeue", "-h", "-o", squeueFormat)
	} else {
		out, err = b.runCmd(ctx, "squeue", "-h", "-p", part, "-o", squeueFormat)
	}
	if err != nil {
		log.Printf("[slurm] squeue: %v\n", err)
		return nil
	}
	var rtn []wpobj.WPObj
	for _, line := range strings.Split(out, "\n") {
		job := b.parseJobLine(line)
		if job == nil {
			continue
		}
		rtn = append(rtn, job)
	}
	return rtn
}

// parseJobLine converts one squeue output line (squeueFormat fields)
// into a job object.  Malformed lines return nil.
func (b *Backend) parseJobLine(line string) *wpobj.WPSlurmJob {
	entry := strings.TrimSpace(line)
	if entry == "" {
		return nil
	}
	parts := strings.SplitN(entry, "|", squeueFieldCount)
	if len(parts) != squeueFieldCount {
		return nil
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	jobId := parts[0]
	if jobId == "" {
		return nil
	}
	userId := parts[1]
	myUserId := b.userId
	if b.scrambleUsers {
		userId = rot13(userId)
		myUserId = rot13(myUserId)
	}
	nodes, _ := strconv.Atoi(parts[2])
	state := capitalize(parts[3])
	partition := parts[4]
	job := &wpobj.WPSlurmJob{
		JobArray:  strings.Contains(jobId, "_"),
		UserId:    &userId,
		NodeCount: nodes,
		JobState:  &state,
		Partition: &partition,
		Cpus:      atoiOrZero(parts[6]),
	}
	job.ID = "/" + partition + "/" + jobId
	job.Title = jobId
	if userId == myUserId {
		job.Icon = wpobj.IconRef(myJobIconName)
	} else {
		job.Icon = wpobj.IconRef(jobIconName)
	}
	setOptString(&job.JobName, parts[5])
	setOptString(&job.TotalMemory, parts[7])
	setOptString(&job.RequestedRuntime, parts[8])
	setOptString(&job.Account, parts[9])
	setOptString(&job.ElapsedRuntime, parts[10])
	setOptString(&job.StateReason, parts[11])
	if priority, err := strconv.Atoi(parts[12]); err == nil {
		job.Priority = &priority
	}
	setOptString(&job.Gres, parts[13])
	if remaining, ok := remainingRuntime(parts[8], parts[10]); ok {
		job.RemainingRuntime = &remaining
	}
	return job
}

// remainingRuntime derives timelimit minus elapsed in Slurm's
// [days-]hh:mm:ss notation.
func remainingRuntime(timeLimit string, elapsed string) (string, bool) {
	if timeLimit == "" {
		return "", false
	}
	remaining := slurmSeconds(timeLimit) - slurmSeconds(elapsed)
	if remaining < 0 {
		remaining = 0
	}
	days := remaining / 86400
	remaining %= 86400
	hours := remaining / 3600
	remaining %= 3600
	minutes := remaining / 60
	seconds := remaining % 60
	if days > 0 {
		return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds), true
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds), true
}

// slurmSeconds parses [days-]hh:mm:ss (shorter forms are right-aligned:
// mm:ss, ss).  Non-numeric bits count as zero.
func slurmSeconds(s string) int {
	if s == "" {
		return 0
	}
	days := 0
	timePart := s
	if daysPart, rest, found := strings.Cut(s, "-"); found {
		days, _ = strconv.Atoi(daysPart)
		timePart = rest
	}
	bits := strings.Split(timePart, ":")
	vals := make([]int, 3)
	for i := 0; i < len(bits) && i < 3; i++ {
		v, err := strconv.Atoi(bits[len(bits)-1-i])
		if err != nil {
			v = 0
		}
		vals[i] = v
	}
	return days*86400 + vals[2]*3600 + vals[1]*60 + vals[0]
}

func (b *Backend) runCmd(ctx context.Context, name string, args ...string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, b.cmdTimeout)
	defer cancel()
	out, err := exec.CommandContext(cmdCtx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("running %s: %w", name, err)
	}
	return string(out), nil
}

func rot13(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+13)%26
		}
		return r
	}, text)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func cutAfter(line string, marker string) (string, bool) {
	idx := strings.Index(line, marker)
	if idx == -1 {
		return "", false
	}
	rest := line[idx+len(marker):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

func setOptString(dst **string, value string) {
	if value == "" {
		return
	}
	v := value
	*dst = &v
}

func atoiOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func firstSegment(base string) string {
	trimmed := strings.Trim(base, "/")
	if trimmed == "" {
		return ""
	}
	seg, _, _ := strings.Cut(trimmed, "/")
	return seg
}

func sortedUnique(names []string) []string {
	seen := make(map[string]bool)
	var rtn []string
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		rtn = append(rtn, name)
	}
	sort.Strings(rtn)
	return rtn
}

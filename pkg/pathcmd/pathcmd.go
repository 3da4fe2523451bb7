// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pathcmd parses and evaluates the command pipeline embedded in
// object ids.  A request id is a base path followed by command tokens of
// the form <Cmd:Arg1[:Arg2]>, each occupying a full path segment.
package pathcmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wayportdev/wayport/pkg/wpobj"
)

type Cmd string

const (
	Cmd_GroupBy    Cmd = "GroupBy"
	Cmd_Show       Cmd = "Show"
	Cmd_ShowMy     Cmd = "ShowMy"
	Cmd_Search     Cmd = "Search"
	Cmd_OpenAction Cmd = "OpenAction"
)

// Token is one parsed command segment.
type Token struct {
	Cmd   Cmd
	Prop  string // GroupBy / Show property
	Value string // Show value, ShowMy user, Search remainder
}

// String renders the token back into its path-segment form.  Group object
// ids built from this must round-trip through ParseToken exactly.
func (t Token) String() string {
	switch t.Cmd {
	case Cmd_GroupBy:
		return fmt.Sprintf("<GroupBy:%s>", t.Prop)
	case Cmd_Show:
		return fmt.Sprintf("<Show:%s:%s>", t.Prop, t.Value)
	case Cmd_ShowMy:
		return fmt.Sprintf("<ShowMy:%s>", t.Value)
	case Cmd_Search:
		if t.Value == "" {
			return "<Search>"
		}
		return fmt.Sprintf("<Search:%s>", t.Value)
	case Cmd_OpenAction:
		return "<OpenAction>"
	}
	return ""
}

// IsTokenSegment reports whether a path segment has command-token form.
func IsTokenSegment(seg string) bool {
	return len(seg) >= 2 && strings.HasPrefix(seg, "<") && strings.HasSuffix(seg, ">")
}

// ParseToken parses a single <...> segment.  ok is false for malformed or
// unknown commands.
func ParseToken(seg string) (Token, bool) {
	if !IsTokenSegment(seg) {
		return Token{}, false
	}
	body := seg[1 : len(seg)-1]
	cmd, rest, hasRest := strings.Cut(body, ":")
	switch Cmd(cmd) {
	case Cmd_GroupBy:
		if !hasRest || rest == "" {
			return Token{}, false
		}
		return Token{Cmd: Cmd_GroupBy, Prop: rest}, true
	case Cmd_Show:
		prop, value, hasValue := strings.Cut(rest, ":")
		if !hasRest || prop == "" || !hasValue {
			return Token{}, false
		}
		return Token{Cmd: Cmd_Show, Prop: prop, Value: value}, true
	case Cmd_ShowMy:
		return Token{Cmd: Cmd_ShowMy, Value: rest}, true
	case Cmd_Search:
		return Token{Cmd: Cmd_Search, Value: rest}, true
	case Cmd_OpenAction:
		return Token{Cmd: Cmd_OpenAction}, true
	}
	return Token{}, false
}

// ParseId splits an id into its base path and trailing command tokens.
// Tokens are peeled from the right; the first non-token segment ends the
// peel.  A rooted id keeps its leading "/" on the base; an empty base
// becomes "/".
func ParseId(id string) (string, []Token) {
	trimmed := strings.TrimSpace(id)
	rooted := strings.HasPrefix(trimmed, "/")
	segs := strings.Split(strings.Trim(trimmed, "/"), "/")
	var tokens []Token
	end := len(segs)
	for end > 0 {
		tok, ok := ParseToken(segs[end-1])
		if !ok {
			break
		}
		tokens = append([]Token{tok}, tokens...)
		end--
	}
	base := strings.Join(segs[:end], "/")
	if rooted || base == "" {
		base = "/" + base
	}
	return base, tokens
}

// Normalize collapses each adjacent <GroupBy:P>,<Show:P:V> pair (same P)
// into just the Show token.  Entering a synthesized group and then
// drilling through it restores the original leaf stream, so subsequent
// operators must apply to leaves again.
func Normalize(tokens []Token) []Token {
	var rtn []Token
	for _, tok := range tokens {
		if tok.Cmd == Cmd_Show && len(rtn) > 0 {
			last := rtn[len(rtn)-1]
			if last.Cmd == Cmd_GroupBy && last.Prop == tok.Prop {
				rtn = rtn[:len(rtn)-1]
			}
		}
		rtn = append(rtn, tok)
	}
	return rtn
}

// EvalOpts parameterizes pipeline evaluation for one provider.
type EvalOpts struct {
	// GroupIconFilename is the icon assigned to synthesized group objects
	// (a ./resources/Name.png reference).
	GroupIconFilename string

	// GroupByAllowed, when non-nil, whitelists groupable properties.
	// Disallowed properties evaluate to an empty result, never an error.
	GroupByAllowed func(prop string) bool
}

// Evaluate applies a normalized token pipeline to the base listing.
// Intermediate tokens must be Show filters; the trailing token may also
// be a GroupBy aggregation.  Any other composition yields an empty
// result (semantic errors are never protocol errors).
func Evaluate(base string, listing []wpobj.WPObj, tokens []Token, opts EvalOpts) []wpobj.WPObj {
	if len(tokens) == 0 {
		return listing
	}
	acc := listing
	for i, tok := range tokens {
		trailing := i == len(tokens)-1
		switch tok.Cmd {
		case Cmd_Show:
			acc = filterShow(acc, tok.Prop, tok.Value)
		case Cmd_GroupBy:
			if !trailing {
				return nil
			}
			if opts.GroupByAllowed != nil && !opts.GroupByAllowed(tok.Prop) {
				return nil
			}
			return groupBy(base, tokens[:i], acc, tok.Prop, opts.GroupIconFilename)
		default:
			return nil
		}
	}
	return acc
}

func filterShow(objs []wpobj.WPObj, prop string, value string) []wpobj.WPObj {
	var rtn []wpobj.WPObj
	for _, obj := range objs {
		s, ok := wpobj.PropValue(obj, prop)
		if !ok {
			continue
		}
		if s == value {
			rtn = append(rtn, obj)
		}
	}
	return rtn
}

func groupBy(base string, priorTokens []Token, objs []wpobj.WPObj, prop string, groupIcon string) []wpobj.WPObj {
	counts := make(map[string]int)
	for _, obj := range objs {
		s, ok := wpobj.PropValue(obj, prop)
		if !ok {
			continue
		}
		counts[s]++
	}
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)
	rtn := make([]wpobj.WPObj, 0, len(values))
	for _, v := range values {
		group := &wpobj.WPGroup{}
		group.ID = JoinTokens(base, priorTokens) + "/" + Token{Cmd: Cmd_Show, Prop: prop, Value: v}.String()
		group.Title = v
		group.Objects = counts[v]
		if groupIcon != "" {
			group.Icon = wpobj.IconRef(groupIcon)
		}
		rtn = append(rtn, group)
	}
	return rtn
}

// JoinTokens appends token segments to a base path.
func JoinTokens(base string, tokens []Token) string {
	rtn := strings.TrimSuffix(base, "/")
	for _, tok := range tokens {
		rtn = rtn + "/" + tok.String()
	}
	if rtn == "" {
		return "/"
	}
	return rtn
}

// BuildObjectsForPath is the complete per-request engine: parse the id,
// normalize the pipeline, list the base, evaluate.  listForBase receives
// the bare base path (no command tokens).
func BuildObjectsForPath(id string, listForBase func(base string) ([]wpobj.WPObj, error), opts EvalOpts) ([]wpobj.WPObj, error) {
	base, tokens := ParseId(id)
	tokens = Normalize(tokens)
	listing, err := listForBase(base)
	if err != nil {
		return nil, err
	}
	return Evaluate(base, listing, tokens, opts), nil
}

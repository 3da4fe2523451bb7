// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package nav

import (
	"context"
	"fmt"
	"log"

	"github.com/skratchdot/open-golang/open"

	"github.com/wayportdev/wayport/pkg/wpobj"
)

// ActionHandlers are the collaborator hooks for open actions that leave
// the browser core: terminal spawning and clipboard are owned by the
// desktop shell, URL opening defaults to the OS handler.
type ActionHandlers struct {
	// OpenTerminal spawns an OS terminal emulator running command.
	OpenTerminal func(command string) error
	// Clipboard receives the command text before the terminal spawns.
	Clipboard func(text string) error
	// OpenURL opens a URL in the system browser.
	OpenURL func(url string) error
	// Context receives any action kind the core does not recognize.
	Context func(action wpobj.ActionMap) error
}

func (h *ActionHandlers) fillDefaults() {
	if h.OpenURL == nil {
		h.OpenURL = open.Run
	}
	if h.OpenTerminal == nil {
		h.OpenTerminal = func(command string) error {
			return fmt.Errorf("no terminal handler configured")
		}
	}
	if h.Clipboard == nil {
		h.Clipboard = func(string) error { return nil }
	}
	if h.Context == nil {
		h.Context = func(action wpobj.ActionMap) error {
			log.Printf("[nav] unhandled action %q\n", action.GetString("action"))
			return nil
		}
	}
}

// PerformOpenAction dispatches the object's declared open actions.  The
// first recognized action wins; an objectbrowser action switches the
// session endpoint.
func (s *Session) PerformOpenAction(ctx context.Context, obj wpobj.WPObj) error {
	base := wpobj.Base(obj)
	for _, action := range base.OpenAction {
		handled, err := s.dispatchAction(ctx, action)
		if handled {
			return err
		}
	}
	if len(base.OpenAction) > 0 {
		return s.actions.Context(base.OpenAction[0])
	}
	return nil
}

// DispatchContextAction handles a context-menu entry; context menus
// mirror open actions.
func (s *Session) DispatchContextAction(ctx context.Context, action wpobj.ActionMap) error {
	handled, err := s.dispatchAction(ctx, action)
	if err != nil {
		return err
	}
	if !handled {
		return s.actions.Context(action)
	}
	return nil
}

func (s *Session) dispatchAction(ctx context.Context, action wpobj.ActionMap) (bool, error) {
	switch action.GetString("action") {
	case "objectbrowser":
		host, port := endpointFromAction(action, s.Current())
		return true, s.PushEndpoint(ctx, host, port)
	case "terminal":
		command := action.GetString("command")
		if command == "" {
			return true, nil
		}
		if err := s.actions.Clipboard(command); err != nil {
			log.Printf("[nav] clipboard: %v\n", err)
		}
		return true, s.actions.OpenTerminal(command)
	case "browser":
		url := action.GetString("url")
		if url == "" {
			return true, nil
		}
		return true, s.actions.OpenURL(url)
	}
	return false, nil
}

// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cmd is the browser core CLI: it roots a navigation session at
// a provider, optionally walks a deep-link path, and renders the
// resulting listing as text.  The graphical shell is a separate
// collaborator built on the same nav/vstate packages.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wayportdev/wayport/pkg/client"
	"github.com/wayportdev/wayport/pkg/nav"
	"github.com/wayportdev/wayport/pkg/vstate"
	"github.com/wayportdev/wayport/pkg/wpobj"
	"github.com/wayportdev/wayport/pkg/wstore"
)

var (
	hostFlag string
	portFlag int
	pathFlag string
)

var rootCmd = &cobra.Command{
	Use:   "wayport",
	Short: "Browse federated object providers",
	Long:  `wayport navigates trees of typed objects exposed by wayportd providers, following deep-link paths across hosts and command pipelines.`,
	RunE:  runBrowse,
}

var selectFlag string
var shortcutDirFlag string

var shortcutCmd = &cobra.Command{
	Use:   "shortcut",
	Short: "write a desktop shortcut for the current deep link",
	RunE:  runShortcut,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "127.0.0.1", "provider host")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 8888, "provider port")
	rootCmd.PersistentFlags().StringVar(&pathFlag, "path", "", "deep-link path to navigate to")
	rootCmd.Flags().StringVar(&selectFlag, "select", "", "object id to select and show details for")
	shortcutCmd.Flags().StringVar(&shortcutDirFlag, "dir", "", "directory to write the .desktop file into (default: ~/Desktop)")
	rootCmd.AddCommand(shortcutCmd)
	log.SetFlags(log.LstdFlags)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startSession(ctx context.Context) (*nav.Session, error) {
	session := nav.MakeSession(client.MakeClient(), nav.ActionHandlers{})
	if err := session.Start(ctx, hostFlag, portFlag); err != nil {
		return nil, err
	}
	if pathFlag != "" {
		if err := session.NavigateToPath(ctx, pathFlag); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	settings := loadSettings(ctx)
	viewState := vstate.MakeState()
	viewState.SetZoom(settings.ZoomLevel)
	viewState.SetDetailsVisible(settings.DetailsVisible)
	session, err := startSession(ctx)
	if err != nil {
		return err
	}
	printListing(session)
	if selectFlag != "" {
		session.Select(selectFlag)
		printDetails(session)
	}
	saveSettings(ctx, viewState)
	return nil
}

func runShortcut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	session, err := startSession(ctx)
	if err != nil {
		return err
	}
	crumbs := session.Breadcrumbs()
	execPath, err := os.Executable()
	if err != nil {
		execPath = "wayport"
	}
	dir := shortcutDirFlag
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		dir = homeDir + "/Desktop"
	}
	filePath, err := nav.WriteDesktopShortcut(dir, nav.DesktopShortcut{
		Name:     crumbs[len(crumbs)-1],
		ExecPath: execPath,
		Path:     session.ShortcutPath(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", filePath)
	return nil
}

func printListing(session *nav.Session) {
	fmt.Printf("%s\n", strings.Join(session.Breadcrumbs(), " > "))
	objs := session.Objects()
	if len(objs) == 0 {
		fmt.Printf("(empty)\n")
		return
	}
	for _, obj := range objs {
		base := wpobj.Base(obj)
		marker := " "
		if base.Objects > 0 {
			marker = "+"
		}
		fmt.Printf("%s %-22s %-28s %4d  %s\n", marker, obj.GetClass(), base.Title, base.Objects, base.ID)
	}
}

// printDetails renders a selected object's property table (the text
// analog of the details panel).
func printDetails(session *nav.Session) {
	details := session.Details()
	if details == nil {
		return
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %v\n", k, details[k])
	}
}

func loadSettings(ctx context.Context) wstore.ClientSettings {
	if err := wstore.AcquireHomeLock(); err != nil {
		log.Printf("[wayport] %v\n", err)
		return wstore.DefaultSettings()
	}
	settings, err := wstore.GetSettings(ctx)
	if err != nil {
		log.Printf("[wayport] loading settings: %v\n", err)
		return wstore.DefaultSettings()
	}
	return settings
}

func saveSettings(ctx context.Context, viewState *vstate.State) {
	settings, err := wstore.GetSettings(ctx)
	if err == nil {
		settings.ZoomLevel = viewState.Zoom()
		settings.DetailsVisible = viewState.DetailsVisible()
		settings.SplitterSizes = viewState.SplitterSizes()
		settings.DetailsSavedWidth = viewState.DetailsSavedWidth()
		if err := wstore.SaveSettings(ctx, settings); err != nil {
			log.Printf("[wayport] saving settings: %v\n", err)
		}
	}
	wstore.CloseDB()
	wstore.ReleaseHomeLock()
}

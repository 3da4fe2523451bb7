// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cmd wires one provider backend per process behind the shared
// protocol server.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wayportdev/wayport/pkg/provider"
	"github.com/wayportdev/wayport/pkg/providers/accountsbackend"
	"github.com/wayportdev/wayport/pkg/providers/homedirbackend"
	"github.com/wayportdev/wayport/pkg/providers/modbackend"
	"github.com/wayportdev/wayport/pkg/providers/nocobackend"
	"github.com/wayportdev/wayport/pkg/providers/slurmbackend"
)

var (
	hostFlag      string
	portFlag      int
	resourcesFlag string
)

var rootCmd = &cobra.Command{
	Use:   "wayportd",
	Short: "Wayport object providers",
	Long:  `wayportd hosts one object provider backend per process, speaking the line-delimited JSON protocol over TCP.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "127.0.0.1", "host to bind")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 8888, "port to bind")
	rootCmd.PersistentFlags().StringVar(&resourcesFlag, "resources", "", "resources directory for the icon catalog")
	rootCmd.AddCommand(slurmCmd)
	rootCmd.AddCommand(homedirCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(nocodbCmd)
	rootCmd.AddCommand(accountsCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// serveBackend runs the listener until SIGINT/SIGTERM.
func serveBackend(backend provider.Backend, opts provider.ServerOpts) error {
	if opts.ResourcesDir == "" {
		opts.ResourcesDir = resourcesFlag
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	server := provider.MakeServer(backend, opts)
	addr := fmt.Sprintf("%s:%d", hostFlag, portFlag)
	return server.ListenAndServe(ctx, addr)
}

var scrambleUsersFlag bool

var slurmCmd = &cobra.Command{
	Use:   "slurm",
	Short: "serve the Slurm batch system provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := slurmbackend.MakeBackend(scrambleUsersFlag)
		return serveBackend(backend, provider.ServerOpts{
			CustomizeIcons: []string{"Job.png"},
		})
	},
}

var homedirRootNameFlag string

var homedirCmd = &cobra.Command{
	Use:   "homedir",
	Short: "serve the home directory provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := homedirbackend.MakeBackend(homedirRootNameFlag)
		if err != nil {
			return err
		}
		return serveBackend(backend, provider.ServerOpts{})
	},
}

var lmodRootFlag string

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "serve the Lmod software tree provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := modbackend.MakeBackend("", lmodRootFlag)
		return serveBackend(backend, provider.ServerOpts{
			CustomizeIcons: []string{"Software.png"},
		})
	},
}

var nocoConfigFlag string

var nocodbCmd = &cobra.Command{
	Use:   "nocodb",
	Short: "serve the NocoDB provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := nocobackend.ReadConfig(nocoConfigFlag)
		if err != nil {
			return err
		}
		backend := nocobackend.MakeBackend(config)
		return serveBackend(backend, provider.ServerOpts{})
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "serve the accounts provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := accountsbackend.MakeBackend("", nil)
		return serveBackend(backend, provider.ServerOpts{})
	},
}

func init() {
	slurmCmd.Flags().BoolVar(&scrambleUsersFlag, "scramble-users", false, "apply ROT13 to user names in listings")
	homedirCmd.Flags().StringVar(&homedirRootNameFlag, "root-name", "", "display name for the provider root")
	modulesCmd.Flags().StringVar(&lmodRootFlag, "lmod-root", "/N/soft/rhel8/modules/quartz", "base directory of the Lmod module families")
	nocodbCmd.Flags().StringVar(&nocoConfigFlag, "config", "./config.dat", "key=value config file with NOCODB_URL and NOCODB_TOKEN")
	log.SetFlags(log.LstdFlags)
}

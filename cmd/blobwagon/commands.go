// Copyright 2025 The blobwagon Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carlosmiranda/blobwagon/gateway"
	"github.com/carlosmiranda/blobwagon/wagons/config"
)

func existsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <resource>",
		Short: "Report whether a resource exists",
		Long:  `Prints true or false. Exits non-zero only when the check itself fails.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.wagon(cmd.Context())
			if err != nil {
				return err
			}
			ok, err := w.ResourceExists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}
}

func getCmd(a *app) *cobra.Command {
	var newerThan string
	cmd := &cobra.Command{
		Use:   "get <resource> <destination>",
		Short: "Download a resource to a local file",
		Long:  `Downloads a resource. Use "-" as destination to write to stdout.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.wagon(cmd.Context())
			if err != nil {
				return err
			}
			resource, dest := args[0], args[1]

			if dest == "-" {
				_, err := w.Stream(cmd.Context(), resource, cmd.OutOrStdout())
				return err
			}
			if newerThan != "" {
				ts, err := time.Parse(time.RFC3339, newerThan)
				if err != nil {
					return fmt.Errorf("invalid --newer-than: %w", err)
				}
				fetched, err := w.GetIfNewer(cmd.Context(), resource, dest, ts)
				if err != nil {
					return err
				}
				if !fetched {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is not newer than %s\n", resource, newerThan)
					return nil
				}
			} else if err := w.Get(cmd.Context(), resource, dest); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", resource, dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&newerThan, "newer-than", "", "only download when the resource is newer than this RFC 3339 time")
	return cmd
}

func putCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <source> <resource>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.wagon(cmd.Context())
			if err != nil {
				return err
			}
			if err := w.Put(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func putDirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put-dir <directory> <destination>",
		Short: "Upload a directory tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.wagon(cmd.Context())
			if err != nil {
				return err
			}
			if err := w.PutDirectory(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func lsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [directory]",
		Short: "List the entries of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.wagon(cmd.Context())
			if err != nil {
				return err
			}
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			entries, err := w.GetFileList(cmd.Context(), dir)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
}

func serveCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve repositories over HTTP",
		Long:  `Serves every enabled repository of the repositories file, or the single repository given by --url.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := a.statCache(ctx)
			if err != nil {
				return err
			}
			if c != nil {
				a.registry.SetStatCache(c)
			}

			opts := gateway.Options{Collector: a.collector}
			if a.file != nil {
				opts.JWTSecret = a.file.Gateway.JWTSecret
				opts.CORSOrigins = a.file.Gateway.CORSOrigins
				if listen == "" {
					listen = a.file.Gateway.Listen
				}
			}
			if secret := a.v.GetString("jwt-secret"); secret != "" {
				opts.JWTSecret = secret
			}
			if listen == "" {
				listen = ":8080"
			}

			if a.file != nil && a.v.GetString("url") == "" {
				secrets, err := a.secrets(ctx)
				if err != nil {
					return err
				}
				if err := a.registry.ConfigureFile(ctx, a.file, secrets); err != nil {
					return err
				}
			} else {
				s, err := a.settings(ctx, a.v.GetString("repository"))
				if err != nil {
					return err
				}
				if err := a.registry.Configure(s); err != nil {
					return err
				}
			}

			return gateway.New(a.registry, opts).ListenAndServe(ctx, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default :8080)")
	return cmd
}

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with repositories files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "example",
		Short: "Print an example repositories file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateExampleConfigFile())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a repositories file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d enabled repositories (%s)\n",
				len(f.EnabledRepositories()), strings.Join(f.EnabledRepositories(), ", "))
			return nil
		},
	})
	return cmd
}

func tokenCmd(a *app) *cobra.Command {
	var (
		subject string
		repos   []string
		write   bool
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a gateway bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := a.v.GetString("jwt-secret")
			if secret == "" && a.file != nil {
				secret = a.file.Gateway.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("no JWT secret: set --jwt-secret, BLOBWAGON_JWT_SECRET or gateway.jwt_secret")
			}
			token, err := gateway.IssueToken([]byte(secret), subject, repos, write, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "blobwagon", "token subject")
	cmd.Flags().StringSliceVar(&repos, "repositories", []string{"*"}, "repository ids the token may access")
	cmd.Flags().BoolVar(&write, "write", false, "allow uploads")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

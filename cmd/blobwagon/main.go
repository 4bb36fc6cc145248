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

// Command blobwagon moves build artifacts to and from object storage
// repositories and can serve them over HTTP.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flags bind to viper keys of the same
// name and to BLOBWAGON_<FLAG> environment variables.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BLOBWAGON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	app := &app{v: v}

	rootCmd := &cobra.Command{
		Use:           "blobwagon",
		Short:         "Artifact transfers over object storage",
		Long:          `blobwagon uploads, downloads and lists build artifacts in Azure Blob Storage, Amazon S3 and Google Cloud Storage repositories.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "repositories file (YAML)")
	flags.StringP("repository", "r", "default", "repository id")
	flags.String("url", "", "repository URL, overrides the repositories file")
	flags.String("username", "", "account or access key")
	flags.String("password", "", "account key or secret key")
	flags.String("secrets", "none", "secrets provider for secret_ref: none, env or aws")
	flags.String("jwt-secret", "", "HS256 secret for gateway bearer tokens")
	flags.Duration("timeout", 0, "connection timeout")
	flags.Duration("read-timeout", 0, "read timeout")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.String("log-format", "console", "log format: json or console")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(existsCmd(app))
	rootCmd.AddCommand(getCmd(app))
	rootCmd.AddCommand(putCmd(app))
	rootCmd.AddCommand(putDirCmd(app))
	rootCmd.AddCommand(lsCmd(app))
	rootCmd.AddCommand(serveCmd(app))
	rootCmd.AddCommand(configCmd(app))
	rootCmd.AddCommand(tokenCmd(app))

	return rootCmd
}

// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command ambuild2 drives the persistent dependency graph engine: build,
// query, and clean a build rooted at a source and build directory pair.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/buildgraph/ambuild2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if buildPath, ok := ambuild2.IsWorkerMode(os.Args); ok {
		if err := runWorker(buildPath); err != nil {
			fatalf("worker: %v", err)
		}
		return
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalf mirrors the teacher's fatalf (cmd/nin/main.go): a one-line
// stderr diagnostic followed by an unconditional nonzero exit.
func fatalf(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ambuild2: fatal: "+msg+"\n", args...)
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	var (
		jobs       int
		sourcePath string
		buildPath  string
		verbosity  string
	)

	root := &cobra.Command{
		Use:           "ambuild2",
		Short:         "Incremental build engine over a persistent dependency graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVarP(&jobs, "jobs", "j", 0, "parallel worker count (default: 1.5x cpu count)")
	root.PersistentFlags().StringVar(&sourcePath, "source", ".", "source tree root")
	root.PersistentFlags().StringVar(&buildPath, "build", ".", "build tree root")
	root.PersistentFlags().StringVar(&verbosity, "verbosity", "normal", "normal, quiet, or explain")
	viper.BindPFlag("jobs", root.PersistentFlags().Lookup("jobs"))
	viper.BindPFlag("source", root.PersistentFlags().Lookup("source"))
	viper.BindPFlag("build", root.PersistentFlags().Lookup("build"))
	viper.BindPFlag("verbosity", root.PersistentFlags().Lookup("verbosity"))
	viper.SetEnvPrefix("ambuild2")
	viper.AutomaticEnv()

	config := resolveConfig

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Run every out-of-date command",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config()
			if err != nil {
				return err
			}
			engine := ambuild2.NewEngine(cfg, cmd.OutOrStdout())
			result, err := engine.Build()
			if err != nil {
				return err
			}
			for _, f := range result.Failures {
				fmt.Fprintln(cmd.ErrOrStderr(), f)
			}
			if result.Status != ambuild2.StatusOK {
				return fmt.Errorf("build %s", result.Status)
			}
			return nil
		},
	}

	var format string
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Print the current graph state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config()
			if err != nil {
				return err
			}
			gf, err := parseFormat(format)
			if err != nil {
				return err
			}
			engine := ambuild2.NewEngine(cfg, cmd.OutOrStdout())
			return engine.QueryGraph(cmd.OutOrStdout(), gf)
		},
	}
	queryCmd.Flags().StringVar(&format, "format", "tree", "tree, dot, or json")

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove every generated output and mkdir'd directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config()
			if err != nil {
				return err
			}
			engine := ambuild2.NewEngine(cfg, cmd.OutOrStdout())
			n, err := engine.Clean()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ambuild2: cleaned %d files\n", n)
			return nil
		},
	}

	root.AddCommand(buildCmd, queryCmd, cleanCmd)
	return root
}

func resolveConfig() (ambuild2.BuildConfig, error) {
	sourcePath, err := filepath.Abs(viper.GetString("source"))
	if err != nil {
		return ambuild2.BuildConfig{}, err
	}
	buildPath, err := filepath.Abs(viper.GetString("build"))
	if err != nil {
		return ambuild2.BuildConfig{}, err
	}
	v, err := parseVerbosity(viper.GetString("verbosity"))
	if err != nil {
		return ambuild2.BuildConfig{}, err
	}
	return ambuild2.BuildConfig{
		Jobs:       viper.GetInt("jobs"),
		SourcePath: sourcePath,
		BuildPath:  buildPath,
		Verbosity:  v,
	}, nil
}

func parseVerbosity(s string) (ambuild2.Verbosity, error) {
	switch s {
	case "normal", "":
		return ambuild2.Normal, nil
	case "quiet":
		return ambuild2.Quiet, nil
	case "explain":
		return ambuild2.ExplainVerbosity, nil
	default:
		return 0, fmt.Errorf("ambuild2: unknown verbosity %q", s)
	}
}

func parseFormat(s string) (ambuild2.GraphFormat, error) {
	switch s {
	case "tree", "":
		return ambuild2.FormatTree, nil
	case "dot":
		return ambuild2.FormatDot, nil
	case "json":
		return ambuild2.FormatJSON, nil
	default:
		return 0, fmt.Errorf("ambuild2: unknown format %q", s)
	}
}

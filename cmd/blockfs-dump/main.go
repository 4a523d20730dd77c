// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/managarm/blockfs-go/lib/profile"
	"github.com/managarm/blockfs-go/lib/textui"
)

// logLevelFlag is a pflag.Value wrapper around logrus.Level, the same
// shape the teacher's btrfs-rec uses for its --verbosity flag.
type logLevelFlag struct {
	logrus.Level
}

func (lvl *logLevelFlag) Type() string { return "loglevel" }
func (lvl *logLevelFlag) Set(str string) error {
	var err error
	lvl.Level, err = logrus.ParseLevel(str)
	return err
}

var _ pflag.Value = (*logLevelFlag)(nil)

// withLogger wraps a subcommand's RunE with the logging/signal-handling
// boilerplate every subcommand needs: a dgroup so ^C cancels an
// in-progress tree walk cleanly, and a logrus-backed dlog.Logger in the
// context at the requested verbosity.
func withLogger(lvl *logLevelFlag, run func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := logrus.New()
		logger.SetLevel(lvl.Level)
		ctx = dlog.WithLogger(ctx, dlog.WrapLogrus(logger))

		grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
			EnableSignalHandling: true,
		})
		grp.Go("main", func(ctx context.Context) error {
			cmd.SetContext(ctx)
			return run(ctx, cmd, args)
		})
		return grp.Wait()
	}
}

func main() {
	logLevel := logLevelFlag{Level: logrus.InfoLevel}

	argparser := &cobra.Command{
		Use:   "blockfs-dump {[flags]|SUBCOMMAND}",
		Short: "Inspect (and incidentally modify) btrfs and ext2 filesystem images",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,

		SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
		SilenceUsage:  true, // our FlagErrorFunc will handle it

		CompletionOptions: cobra.CompletionOptions{ //nolint:exhaustivestruct
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	argparser.PersistentFlags().Var(&logLevel, "verbosity", "set the verbosity")
	stopProfiling := profile.AddProfileFlags(argparser.PersistentFlags(), "profile.")

	argparser.AddCommand(newBtrfsCmd(&logLevel))
	argparser.AddCommand(newExt2Cmd(&logLevel))

	err := argparser.ExecuteContext(context.Background())
	if stopErr := stopProfiling(); stopErr != nil && err == nil {
		err = stopErr
	}
	if err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}

// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/managarm/blockfs-go/ext2"
	"github.com/managarm/blockfs-go/lib/ext2util"
	"github.com/managarm/blockfs-go/lib/jsonutil"
)

// newExt2Cmd builds the "ext2" command group. Unlike the "btrfs" group,
// ext2's write path is incidental rather than entirely absent (per this
// module's scope), so "mkdir" and "symlink" subcommands exist alongside
// the read-only ones.
func newExt2Cmd(logLevel *logLevelFlag) *cobra.Command {
	var image string

	cmd := &cobra.Command{
		Use:   "ext2 {[flags]|SUBCOMMAND}",
		Short: "Inspect and incidentally modify an ext2 filesystem image",
		Args:  cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE:  cliutil.RunSubcommands,
	}
	cmd.PersistentFlags().StringVar(&image, "image", "", "the ext2 filesystem `image` file")
	if err := cmd.MarkPersistentFlagFilename("image"); err != nil {
		panic(err)
	}
	if err := cmd.MarkPersistentFlagRequired("image"); err != nil {
		panic(err)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "superblock",
		Short: "Print the filesystem's superblock fields",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: withLogger(logLevel, func(_ context.Context, _ *cobra.Command, _ []string) error {
			fs, err := ext2util.Open(os.O_RDONLY, image)
			if err != nil {
				return err
			}
			table := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintf(table, "block size\t%v\n", fs.SB.BlockSize)
			fmt.Fprintf(table, "inode size\t%v\n", fs.SB.InodeSize)
			fmt.Fprintf(table, "inodes count\t%v\n", fs.SB.InodesCount())
			fmt.Fprintf(table, "blocks count\t%v\n", fs.SB.BlocksCount())
			fmt.Fprintf(table, "block groups\t%v\n", fs.SB.NumGroups)
			return table.Flush()
		}),
	})

	var dirIno uint32
	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List the entries of a directory inode (default: the root)",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: withLogger(logLevel, func(_ context.Context, _ *cobra.Command, _ []string) error {
			fs, err := ext2util.Open(os.O_RDONLY, image)
			if err != nil {
				return err
			}
			var dir *ext2.Inode
			if dirIno == 0 {
				dir, err = fs.RootInode()
			} else {
				dir, err = fs.GetInode(dirIno)
			}
			if err != nil {
				return err
			}
			entries, err := dir.ReadEntries()
			if err != nil {
				return err
			}
			table := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(table, "%v\t%v\t%v\n", e.Inode, e.FileType, e.Name)
			}
			return table.Flush()
		}),
	}
	lsCmd.Flags().Uint32Var(&dirIno, "inode", 0, "the directory inode number to list")
	cmd.AddCommand(lsCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "dump-inode INODE",
		Short: "Print an inode's raw on-disk bytes as a JSON hex string, for debugging the inode decoder",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: withLogger(logLevel, func(_ context.Context, _ *cobra.Command, args []string) error {
			fs, err := ext2util.Open(os.O_RDONLY, image)
			if err != nil {
				return err
			}
			var ino uint32
			if _, err := fmt.Sscanf(args[0], "%d", &ino); err != nil {
				return fmt.Errorf("inode: %w", err)
			}
			node, err := fs.GetInode(ino)
			if err != nil {
				return err
			}
			raw, err := node.RawBytes()
			if err != nil {
				return err
			}
			if err := jsonutil.EncodeHexString(os.Stdout, raw); err != nil {
				return err
			}
			_, err = os.Stdout.WriteString("\n")
			return err
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "mkdir PARENT_INODE NAME",
		Short: "Create an empty subdirectory under an existing directory inode",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(2)),
		RunE: withLogger(logLevel, func(_ context.Context, _ *cobra.Command, args []string) error {
			fs, err := ext2util.Open(os.O_RDWR, image)
			if err != nil {
				return err
			}
			var parentIno uint32
			if _, err := fmt.Sscanf(args[0], "%d", &parentIno); err != nil {
				return fmt.Errorf("parent inode: %w", err)
			}
			dir, err := fs.GetInode(parentIno)
			if err != nil {
				return err
			}
			child, err := fs.Mkdir(dir, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created inode %v\n", child.Ino)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "symlink PARENT_INODE NAME TARGET",
		Short: "Create a symlink under an existing directory inode",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(3)),
		RunE: withLogger(logLevel, func(_ context.Context, _ *cobra.Command, args []string) error {
			fs, err := ext2util.Open(os.O_RDWR, image)
			if err != nil {
				return err
			}
			var parentIno uint32
			if _, err := fmt.Sscanf(args[0], "%d", &parentIno); err != nil {
				return fmt.Errorf("parent inode: %w", err)
			}
			dir, err := fs.GetInode(parentIno)
			if err != nil {
				return err
			}
			child, err := fs.Symlink(dir, args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created inode %v\n", child.Ino)
			return nil
		}),
	})

	return cmd
}

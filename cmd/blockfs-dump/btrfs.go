// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/managarm/blockfs-go/lib/btrfs"
	"github.com/managarm/blockfs-go/lib/btrfs/btrfsitem"
	"github.com/managarm/blockfs-go/lib/btrfsmisc"
	"github.com/managarm/blockfs-go/lib/btrfsutil"
	"github.com/managarm/blockfs-go/lib/textui"
)

// newBtrfsCmd builds the "btrfs" command group: read-only inspection of
// a (possibly multi-device) btrfs volume, grounded on the teacher's
// cmd/btrfs-rec subcommands but trimmed to this module's read-only
// scope (no rebuild/repair passes).
func newBtrfsCmd(logLevel *logLevelFlag) *cobra.Command {
	var pvs []string

	cmd := &cobra.Command{
		Use:   "btrfs {[flags]|SUBCOMMAND}",
		Short: "Inspect a btrfs filesystem image",
		Args:  cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE:  cliutil.RunSubcommands,
	}
	cmd.PersistentFlags().StringArrayVar(&pvs, "pv", nil, "open the file `physical_volume` as part of the filesystem")
	if err := cmd.MarkPersistentFlagFilename("pv"); err != nil {
		panic(err)
	}
	if err := cmd.MarkPersistentFlagRequired("pv"); err != nil {
		panic(err)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "superblock",
		Short: "Print the filesystem's superblock fields",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: withLogger(logLevel, func(ctx context.Context, _ *cobra.Command, _ []string) error {
			fs, err := btrfsutil.Open(ctx, os.O_RDONLY, pvs...)
			if err != nil {
				return err
			}
			defer fs.Close()

			sb, err := fs.Superblock()
			if err != nil {
				return err
			}
			table := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintf(table, "fsid\t%v\n", sb.FSUUID)
			fmt.Fprintf(table, "node size\t%v\n", sb.NodeSize)
			fmt.Fprintf(table, "root tree\t%v\n", sb.RootTree)
			fmt.Fprintf(table, "chunk tree\t%v\n", sb.ChunkTree)
			fmt.Fprintf(table, "generation\t%v\n", sb.Generation)
			return table.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls-trees",
		Short: "Count the items in each of the filesystem's trees",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: withLogger(logLevel, func(ctx context.Context, _ *cobra.Command, _ []string) error {
			fs, err := btrfsutil.Open(ctx, os.O_RDONLY, pvs...)
			if err != nil {
				return err
			}
			defer fs.Close()

			var treeErrCnt int
			var treeItemCnt map[btrfsitem.Type]int
			flush := func(name string, id btrfs.ObjID) {
				total := 0
				for _, n := range treeItemCnt {
					total += n
				}
				textui.Fprintf(os.Stdout, "tree id=%v name=%q: %v errors, %v items\n", id, name, treeErrCnt, total)
			}

			btrfsmisc.WalkAllTrees(ctx, fs, btrfsmisc.WalkAllTreesHandler{
				PreTree: func(name string, id btrfs.ObjID) {
					treeErrCnt = 0
					treeItemCnt = make(map[btrfsitem.Type]int)
				},
				PostTree: flush,
				Err: func(error) {
					treeErrCnt++
				},
				TreeWalkHandler: btrfs.TreeWalkHandler{
					Item: func(_ btrfs.TreePath, item btrfs.Item) error {
						treeItemCnt[item.Key.ItemType]++
						return nil
					},
				},
			})
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "spew-items",
		Short: "Spew all items as parsed, for debugging the item decoders",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: withLogger(logLevel, func(ctx context.Context, _ *cobra.Command, _ []string) error {
			fs, err := btrfsutil.Open(ctx, os.O_RDONLY, pvs...)
			if err != nil {
				return err
			}
			defer fs.Close()

			dumper := spew.NewDefaultConfig()
			dumper.DisablePointerAddresses = true

			btrfsmisc.WalkAllTrees(ctx, fs, btrfsmisc.WalkAllTreesHandler{
				Err: func(err error) {
					dlog.Error(ctx, err)
				},
				TreeWalkHandler: btrfs.TreeWalkHandler{
					Item: func(path btrfs.TreePath, item btrfs.Item) error {
						textui.Fprintf(os.Stdout, "%s = ", path)
						dumper.Dump(item)
						return nil
					},
				},
			})
			return nil
		}),
	})

	return cmd
}

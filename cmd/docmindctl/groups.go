package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docmind/internal/groups"
)

func newGroupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage project groups",
		Long: `A project group is a named collection of documents. It owns an upload
directory under data_dir, a vector collection, per-document summaries and one
mind-map.`,
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group and its upload directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := a.metadata(cmd.Context())
			if err != nil {
				return err
			}
			svc := groups.NewService(meta, nil, a.cfg.Data.Dir, a.logger)
			g, err := svc.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created group %s (upload to %s)\n", g.Name, svc.Dir(g.Name))
			return nil
		},
	}

	var yes bool
	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a group with its documents, summaries, mind-map and vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("deleting group %s removes all of its data; pass --yes to confirm", args[0])
			}
			meta, err := a.metadata(cmd.Context())
			if err != nil {
				return err
			}
			vectors, err := a.vectorStore()
			if err != nil {
				return err
			}
			if err := groups.NewService(meta, vectors, a.cfg.Data.Dir, a.logger).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted group %s\n", args[0])
			return nil
		},
	}
	del.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	list := &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			meta, err := a.metadata(cmd.Context())
			if err != nil {
				return err
			}
			all, err := groups.NewService(meta, nil, a.cfg.Data.Dir, a.logger).List(cmd.Context())
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no groups")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCREATED")
			for _, g := range all {
				fmt.Fprintf(tw, "%s\t%s\n", g.Name, g.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(create, del, list)
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docmind/internal/mindmap"
	"github.com/fyrsmithlabs/docmind/internal/store"
)

func newMindMapCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mindmap",
		Short: "Inspect group mind-maps",
	}

	var format string
	show := &cobra.Command{
		Use:   "show <group>",
		Short: "Print the mind-map of a group",
		Long: `Print the current mind-map of a group as an indented tree or as the stored
JSON document.

Examples:
  docmindctl mindmap show finance-q1
  docmindctl mindmap show finance-q1 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := a.metadata(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := meta.LookupGroup(cmd.Context(), args[0]); err != nil {
				return err
			}
			m, err := meta.MindMap(cmd.Context(), args[0])
			if errors.Is(err, store.ErrMindMapNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "group %s has no mind-map yet\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			root, err := mindmap.Decode(m.Data)
			if err != nil {
				return err
			}

			switch format {
			case "tree":
				renderTree(cmd.OutOrStdout(), root)
				return nil
			case "json":
				data, err := root.MarshalIndent()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			default:
				return fmt.Errorf("unknown format %q (tree, json)", format)
			}
		},
	}
	show.Flags().StringVar(&format, "format", "tree", "output format: tree or json")

	cmd.AddCommand(show)
	return cmd
}

// renderTree prints root and its descendants with box-drawing guides.
func renderTree(w io.Writer, root *mindmap.Node) {
	fmt.Fprintln(w, root.Topic)
	var walk func(n *mindmap.Node, prefix string)
	walk = func(n *mindmap.Node, prefix string) {
		for i, child := range n.Children {
			branch, next := "├── ", "│   "
			if i == len(n.Children)-1 {
				branch, next = "└── ", "    "
			}
			fmt.Fprintln(w, prefix+branch+child.Topic)
			walk(child, prefix+next)
		}
	}
	walk(root, "")
}

func newSummariesCmd(a *app) *cobra.Command {
	var file string
	var limit int
	var full bool
	cmd := &cobra.Command{
		Use:   "summaries <group>",
		Short: "List document summaries of a group, newest first",
		Long: `List stored summaries of a group. Every processed submission adds a summary,
so a resubmitted file can have several.

Examples:
  docmindctl summaries finance-q1
  docmindctl summaries finance-q1 --file report.pdf --full`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := a.metadata(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := meta.LookupGroup(cmd.Context(), args[0]); err != nil {
				return err
			}
			summaries, err := meta.Summaries(cmd.Context(), args[0], file, limit)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "group %s has no summaries\n", args[0])
				return nil
			}

			out := cmd.OutOrStdout()
			if full {
				for _, s := range summaries {
					fmt.Fprintf(out, "# %s (%s)\n\n%s\n\n", s.FileName, s.CreatedAt.Format(time.RFC3339), s.SummaryText)
				}
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILE\tCREATED\tSUMMARY")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.FileName, s.CreatedAt.Format(time.RFC3339), excerpt(s.SummaryText, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "only summaries of this file")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of summaries")
	cmd.Flags().BoolVar(&full, "full", false, "print complete summary texts")
	return cmd
}

// excerpt returns the first line of s, cut to n runes.
func excerpt(s string, n int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	r := []rune(line)
	if len(r) <= n {
		return line
	}
	return string(r[:n-1]) + "…"
}

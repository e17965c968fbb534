package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docmind/internal/intake"
)

// ErrNotReplayable is returned for dropped jobs whose envelope never decoded.
var ErrNotReplayable = errors.New("dropped job has no valid envelope")

func newEnqueueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <group> <file>",
		Short: "Submit a document for ingestion",
		Long: `Register data_dir/<group>/<file> as a document of the group and publish an
ingestion job for it. Submitting the same file again queues it again.

Examples:
  docmindctl enqueue finance-q1 report.pdf`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			meta, err := a.metadata(ctx)
			if err != nil {
				return err
			}
			q, err := a.jobs(ctx)
			if err != nil {
				return err
			}

			sub, err := intake.NewSubmitter(meta, q, a.cfg.Data.Dir, a.logger).Submit(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s (sequence %d)\n", sub.Envelope, sub.Sequence)
			return nil
		},
	}
}

func newDroppedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dropped",
		Short: "Inspect and replay dropped jobs",
		Long: `Jobs that failed are terminated, never retried automatically, and recorded
with the stage and kind of their failure. Fix the cause, then replay them.`,
	}

	var group string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List dropped jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := a.jobs(cmd.Context())
			if err != nil {
				return err
			}
			records, err := q.Dropped(cmd.Context(), group, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no dropped jobs")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tDROPPED\tGROUP\tFILE\tSTAGE\tKIND\tERROR")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Sequence,
					r.DroppedAt.Format(time.RFC3339),
					r.Envelope.ProjectGroup,
					r.Envelope.FileName,
					r.Stage,
					r.Kind,
					r.Error,
				)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&group, "group", "", "only show jobs of this group")
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs (0 for all)")

	replay := &cobra.Command{
		Use:   "replay <seq>",
		Short: "Publish a dropped job again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			q, err := a.jobs(ctx)
			if err != nil {
				return err
			}
			rec, err := q.DroppedBySeq(ctx, seq)
			if err != nil {
				return fmt.Errorf("loading dropped job %d: %w", seq, err)
			}
			if err := rec.Envelope.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrNotReplayable, err)
			}
			newSeq, err := q.Publish(ctx, rec.Envelope)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %s (sequence %d)\n", rec.Envelope, newSeq)
			return nil
		},
	}

	cmd.AddCommand(list, replay)
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Submit files as they appear in group directories",
		Long: `Watch data_dir/<group>/ for every existing group and submit each new or
changed file once it has been quiet for the debounce interval. Runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			meta, err := a.metadata(ctx)
			if err != nil {
				return err
			}
			q, err := a.jobs(ctx)
			if err != nil {
				return err
			}
			if debounce <= 0 {
				debounce = a.cfg.Intake.Debounce.Duration()
			}

			out := cmd.OutOrStdout()
			w, err := intake.NewWatcher(
				intake.NewSubmitter(meta, q, a.cfg.Data.Dir, a.logger),
				intake.WithDebounce(debounce),
				intake.OnSubmit(func(s *intake.Submission) {
					fmt.Fprintf(out, "queued %s (sequence %d)\n", s.Envelope, s.Sequence)
				}),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "watching %s\n", a.cfg.Data.Dir)
			return w.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a file is submitted (default from config)")
	return cmd
}

// Package main implements docmindctl, the operator CLI for docmind: group
// management, job submission, dropped-job replay and read-only views of the
// stored summaries and mind-maps.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docmind/internal/bootstrap"
	"github.com/fyrsmithlabs/docmind/internal/config"
	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/store"
	"github.com/fyrsmithlabs/docmind/internal/vectorstore"
)

// version information
var version = "dev"

func main() {
	a := &app{}
	defer a.close()
	if err := newRootCmd(a).Execute(); err != nil {
		a.close()
		os.Exit(1)
	}
}

// app holds the flags and lazily opened clients shared by all commands.
type app struct {
	configPath string
	envFile    string
	verbose    bool

	cfg     *config.Config
	logger  *logging.Logger
	store   *store.Store
	queue   *bootstrap.Queue
	vectors vectorstore.Store
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "docmindctl",
		Short: "Operate a docmind deployment",
		Long: `docmindctl manages project groups, submits documents for ingestion and
inspects what the docmind worker produced.

It reads the same configuration as the daemon (config file plus DOCMIND_*
environment variables) and loads a .env file first when one is present.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags().Changed("env-file"))
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/docmind/config.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log client activity")

	root.AddCommand(
		newEnqueueCmd(a),
		newGroupCmd(a),
		newMindMapCmd(a),
		newSummariesCmd(a),
		newDroppedCmd(a),
		newWatchCmd(a),
		newHealthCmd(),
		newVersionCmd(),
	)
	return root
}

// load reads .env and the configuration once. A missing .env is only an
// error when the file was named explicitly.
func (a *app) load(envExplicit bool) error {
	if a.cfg != nil {
		return nil
	}

	if a.envFile != "" {
		err := godotenv.Load(a.envFile)
		if err != nil && (envExplicit || !errors.Is(err, fs.ErrNotExist)) {
			return fmt.Errorf("loading %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.LoadWithFile(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.verbose {
		cfg.Logging.Format = "console"
		logger, err := bootstrap.Logger(cfg)
		if err != nil {
			return err
		}
		a.logger = logger
	} else {
		a.logger = logging.NewNop()
	}
	return nil
}

func (a *app) metadata(ctx context.Context) (*store.Store, error) {
	if a.store == nil {
		s, err := store.Open(ctx, a.cfg.Database, a.logger)
		if err != nil {
			return nil, err
		}
		a.store = s
	}
	return a.store, nil
}

func (a *app) jobs(ctx context.Context) (*bootstrap.Queue, error) {
	if a.queue == nil {
		q, err := bootstrap.ConnectQueue(ctx, a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.queue = q
	}
	return a.queue, nil
}

func (a *app) vectorStore() (vectorstore.Store, error) {
	if a.vectors == nil {
		v, err := vectorstore.NewStore(a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.vectors = v
	}
	return a.vectors, nil
}

func (a *app) close() {
	if a.vectors != nil {
		_ = a.vectors.Close()
		a.vectors = nil
	}
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
	if a.queue != nil {
		a.queue.Close()
		a.queue = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docmindctl %s\n", version)
		},
	}
}

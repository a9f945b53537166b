package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/config"
	logpkg "github.com/kailas-cloud/ragmail/internal/logger"
	"github.com/kailas-cloud/ragmail/internal/metrics"
	"github.com/kailas-cloud/ragmail/internal/version"
)

type rootFlags struct {
	configPath string
	env        string
}

func newRootCmd(a *app) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "ragmail",
		Short:         "Answer policy questions by email using retrieval-augmented generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `ragmail splits a policy document into overlapping chunks, stores their
embeddings in a vector index and answers unseen mail with a model grounded on
the closest chunks.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init(flags)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file (overrides --env)")
	cmd.PersistentFlags().StringVarP(&flags.env, "env", "e", config.GetEnv(), "Environment name; loads config/<env>.yaml")

	cmd.AddCommand(
		newIndexCmd(a),
		newAskCmd(a),
		newPollCmd(a),
		newHealthCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// init loads configuration and builds the logger. Clients are created lazily
// by the commands that need them.
func (a *app) init(flags *rootFlags) error {
	var (
		cfg config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load(flags.env)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(flags.env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	metrics.Register()

	a.cfg = cfg
	a.env = flags.env
	a.logger = logger
	a.logger.Debug("Configuration loaded",
		zap.String("version", version.Version),
		zap.String("env", flags.env),
		zap.String("index_driver", cfg.Index.Driver),
		zap.String("generation_api", cfg.Generation.API),
	)
	return nil
}

var errUnhealthy = errors.New("one or more dependencies are unhealthy")

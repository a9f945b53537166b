package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/transport/chi"
	"github.com/kailas-cloud/ragmail/internal/transport/mailbox"
	"github.com/kailas-cloud/ragmail/internal/usecase/answer"
	"github.com/kailas-cloud/ragmail/internal/usecase/responder"
)

func newPollCmd(a *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Reply to unseen mail, polling the mailbox until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidateMail(); err != nil {
				return err
			}

			unlock, err := acquirePollLock(a.cfg.Mail.LockFile)
			if err != nil {
				return err
			}
			defer unlock()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pipeline, err := a.answerService(ctx)
			if err != nil {
				return err
			}
			// the mailbox loop and /ask share one pipeline, one query at a time
			answers := answer.NewSerialized(pipeline)

			mc := a.cfg.Mail
			svc := responder.New(
				mailbox.NewFetcher(mailbox.IMAPConfig{
					Addr:     mc.IMAPAddr,
					Username: mc.Username,
					Password: mc.Password,
					Mailbox:  mc.Mailbox,
				}, a.logger),
				mailbox.NewSender(mailbox.SMTPConfig{
					Host:     mc.SMTPHost,
					Port:     mc.SMTPPort,
					Username: mc.Username,
					Password: mc.Password,
					From:     mc.From,
				}),
				answers,
				responder.Options{Interval: mc.PollInterval(), SelfAddress: mc.From},
				a.logger,
			)

			if once {
				res, err := svc.Poll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d replied=%d failed=%d skipped=%d\n",
					res.Fetched, res.Replied, res.Failed, res.Skipped)
				return nil
			}

			if a.cfg.Ops.Port > 0 {
				srv := a.opsServer(ctx, answers)
				go func() {
					a.logger.Info("Starting ops server", zap.String("addr", srv.Addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("Ops server error", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(
						context.Background(), time.Duration(a.cfg.Ops.ShutdownSec)*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						a.logger.Error("Error during ops server shutdown", zap.Error(err))
					}
				}()
			}

			return svc.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Poll a single time and exit")
	return cmd
}

func (a *app) opsServer(ctx context.Context, asker chi.Asker) *http.Server {
	server := chi.NewServer(a.healthService(ctx), asker, a.logger)
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Ops.Port),
		Handler:      server.Router(a.cfg.Ops.APIKeys),
		ReadTimeout:  time.Duration(a.cfg.Ops.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Ops.WriteTimeoutSec) * time.Second,
	}
}

// acquirePollLock makes sure only one poller works a mailbox at a time.
func acquirePollLock(path string) (func(), error) {
	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire poll lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another poller is running (lock: %s)", path)
	}
	return func() { _ = l.Unlock() }, nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/predict/api"
	"github.com/nvr-ai/predict/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /predict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	a, err := setup(opts, m)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ss := a.settings.Server
	srv := api.NewServer(api.Config{
		Listen:         ss.Listen,
		FieldName:      ss.FieldName,
		BodyLimit:      ss.BodyLimit,
		RequestTimeout: ss.RequestTimeout,
		CORSOrigins:    ss.CORSOrigins,
	}, a.predictor, m, a.log)

	var admin *http.Server
	if listen := a.settings.Metrics.Listen; listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		admin = &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	if admin != nil {
		g.Go(func() error {
			a.log.WithField("listen", admin.Addr).Info("metrics listening")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server failed")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ss.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if admin != nil {
			if aerr := admin.Shutdown(shutdownCtx); err == nil {
				err = aerr
			}
		}
		return err
	})

	return g.Wait()
}

// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxcd/pkg/runtime/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/flux-subsystem/workload-engine/internal/config"
	"github.com/flux-subsystem/workload-engine/internal/coordinator"
	"github.com/flux-subsystem/workload-engine/internal/k8s"
	"github.com/flux-subsystem/workload-engine/internal/runner"
)

var setupLog = ctrl.Log.WithName("setup")

func main() {
	var opts config.Options
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	logger.SetLogger(logger.NewLogger(opts.LogOptions))

	gw, err := k8s.New(opts.GatewayOptions(), ctrl.Log.WithName("gateway"))
	if err != nil {
		setupLog.Error(err, "unable to build cluster gateway")
		os.Exit(1)
	}

	coord := coordinator.New(gw, runner.Default(), coordinator.Defaults{
		QueueName:     opts.DefaultQueueName,
		PriorityClass: opts.DefaultPriorityClass,
	}, ctrl.Log.WithName("coordinator"))

	mux := http.NewServeMux()
	mux.Handle("/", coordinator.NewHandler(coord, ctrl.Log.WithName("http")))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         opts.ListenAddr,
		Handler:      mux,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		setupLog.Info("starting server", "addr", opts.ListenAddr, "namespace", gw.Namespace())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			setupLog.Error(err, "server exited unexpectedly")
			os.Exit(1)
		}
	case <-ctx.Done():
		setupLog.Info("shutdown signal received, draining in-flight requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.GracefulShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			setupLog.Error(err, "graceful shutdown failed")
			os.Exit(1)
		}
	}

	setupLog.Info("server stopped")
}

// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package config binds the process-level bootstrap flags for
// cmd/server: the HTTP listen address, the Kubernetes client options
// the Cluster Gateway is built from, and the runtime's logging
// options, grounded on cmd/operator/main.go's pflag-based style.
package config

import (
	"time"

	"github.com/fluxcd/pkg/runtime/logger"
	flag "github.com/spf13/pflag"

	"github.com/flux-subsystem/workload-engine/internal/k8s"
)

// Options holds every flag the server binary accepts.
type Options struct {
	ListenAddr string
	Kubeconfig string
	Namespace  string

	DefaultQueueName     string
	DefaultPriorityClass string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	GracefulShutdownTimeout time.Duration

	LogOptions logger.Options
}

// BindFlags registers every flag on fs, following the teacher's
// pattern of binding directly into the Options struct fields rather
// than collecting into package-level vars.
func (o *Options) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.ListenAddr, "listen-addr", ":8080",
		"The address the HTTP API server binds to.")
	fs.StringVar(&o.Kubeconfig, "kubeconfig", "",
		"Path to a kubeconfig file. If empty, in-cluster config is used when available.")
	fs.StringVar(&o.Namespace, "namespace", "",
		"Namespace to operate in. If empty, it is discovered from the service account or kubeconfig context.")
	fs.StringVar(&o.DefaultQueueName, "default-queue-name", "",
		"Kueue LocalQueue name assumed when a submission does not specify one.")
	fs.StringVar(&o.DefaultPriorityClass, "default-priority-class", "",
		"Kueue WorkloadPriorityClass name assumed when a submission does not specify one.")
	fs.DurationVar(&o.ReadTimeout, "read-timeout", 30*time.Second,
		"The HTTP server's read timeout.")
	fs.DurationVar(&o.WriteTimeout, "write-timeout", 0,
		"The HTTP server's write timeout. Zero disables it, required for streaming log responses.")
	fs.DurationVar(&o.IdleTimeout, "idle-timeout", 2*time.Minute,
		"The HTTP server's idle timeout.")
	fs.DurationVar(&o.GracefulShutdownTimeout, "graceful-shutdown-timeout", 10*time.Second,
		"How long to wait for in-flight requests to finish during shutdown.")

	o.LogOptions.BindFlags(fs)
}

// GatewayOptions projects the subset of Options the Cluster Gateway
// is constructed from.
func (o *Options) GatewayOptions() k8s.Options {
	return k8s.Options{
		Kubeconfig: o.Kubeconfig,
		Namespace:  o.Namespace,
	}
}

// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package runner implements the ExecutionMode to submission-path
// registry. The source this engine is modelled on keeps a global
// mutable map populated as a side effect of importing each runner
// module; this package replaces that with an explicit registry built
// once at process start and passed to the Coordinator, so there is no
// process-wide mutable state and no import-order dependency.
package runner

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
	"github.com/flux-subsystem/workload-engine/internal/k8s"
	"github.com/flux-subsystem/workload-engine/internal/planner"
)

// Factory plans and submits a manifest for one ExecutionMode.
type Factory func(ctx context.Context, gw *k8s.Gateway, spec planner.JobSpec) (*unstructured.Unstructured, error)

// Registry maps an ExecutionMode to the Factory that handles it.
// It is immutable after construction.
type Registry struct {
	factories map[planner.ExecutionMode]Factory
}

// NewRegistry builds a Registry from the mode→Factory pairs supplied
// by the caller. There is no package-level default registry: the
// caller (cmd/server) decides exactly which modes are wired in.
func NewRegistry(entries map[planner.ExecutionMode]Factory) *Registry {
	factories := make(map[planner.ExecutionMode]Factory, len(entries))
	for mode, f := range entries {
		factories[mode] = f
	}
	return &Registry{factories: factories}
}

// Default builds the Registry this service ships with: kueue and
// rayjob both plan and submit through planner.Plan followed by the
// matching Gateway create operation. local and docker are
// intentionally absent, so Submit for those modes fails with BadMode
// at the registry lookup.
func Default() *Registry {
	return NewRegistry(map[planner.ExecutionMode]Factory{
		planner.ModeKueue: func(ctx context.Context, gw *k8s.Gateway, spec planner.JobSpec) (*unstructured.Unstructured, error) {
			manifest, err := planner.Plan(ctx, gw, spec)
			if err != nil {
				return nil, err
			}
			return gw.CreateBatchJob(ctx, gw.Namespace(), manifest)
		},
		planner.ModeRayJob: func(ctx context.Context, gw *k8s.Gateway, spec planner.JobSpec) (*unstructured.Unstructured, error) {
			manifest, err := planner.Plan(ctx, gw, spec)
			if err != nil {
				return nil, err
			}
			return gw.CreateCustomResource(ctx, gw.Namespace(), manifest)
		},
	})
}

// Submit looks up the Factory for spec.Mode and runs it, failing with
// BadMode for any mode the Registry was not built with an entry for.
func (r *Registry) Submit(ctx context.Context, gw *k8s.Gateway, spec planner.JobSpec) (*unstructured.Unstructured, error) {
	factory, ok := r.factories[spec.Mode]
	if !ok {
		return nil, apierror.New(apierror.BadMode, fmt.Sprintf("no runner registered for execution mode %q", spec.Mode))
	}
	return factory(ctx, gw, spec)
}

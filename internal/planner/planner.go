// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package planner implements the Submission Planner: translating an
// abstract JobSpec into a Kubernetes manifest that the apiserver will
// accept, Kueue will queue, and the Gateway can later find again by
// the kueue.x-k8s.io/job-uid label.
package planner

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
	"github.com/flux-subsystem/workload-engine/internal/k8s"
)

// ExecutionMode is the set of submission targets a JobSpec may select.
type ExecutionMode string

const (
	ModeLocal  ExecutionMode = "local"
	ModeDocker ExecutionMode = "docker"
	ModeKueue  ExecutionMode = "kueue"
	ModeRayJob ExecutionMode = "rayjob"
)

// ResourceOptions carries the Kubernetes-style quantity strings for a
// workload's container resources. GPU, when set, is rendered under
// the nvidia.com/gpu resource name.
type ResourceOptions struct {
	CPU    string
	Memory string
	GPU    string

	// RayVersion optionally overrides the Ray cluster version used for
	// a rayjob submission. Unset means defaultRayVersion (2.34.0); a
	// set value must be at least 2.9.0.
	RayVersion string
}

// SchedulingOptions names the Kueue LocalQueue and WorkloadPriorityClass
// a submission should be scheduled against. Either may be nil, meaning
// "let Kueue use its defaults".
type SchedulingOptions struct {
	QueueName     *string
	PriorityClass *string
}

// JobSpec is the Planner's input: an abstract description of a job to
// run, independent of the Kubernetes object that will eventually
// represent it.
type JobSpec struct {
	Name              string
	EntrypointFile    string
	ImageRef          string
	Mode              ExecutionMode
	Resources         ResourceOptions
	Scheduling        SchedulingOptions
	Labels            map[string]string
	SubmissionContext map[string]any
}

// Validate checks every invariant spec.md §3 places on a JobSpec,
// independent of any Kubernetes call.
func (s JobSpec) Validate() error {
	if s.Name == "" {
		return apierror.New(apierror.ValidationFailed, "name must not be empty")
	}
	if err := validateImageRef(s.ImageRef); err != nil {
		return apierror.Wrap(apierror.ValidationFailed, fmt.Sprintf("not a valid image ref: %q", s.ImageRef), err)
	}
	for key, value := range s.Labels {
		if err := validateLabelKey(key); err != nil {
			return apierror.Wrap(apierror.ValidationFailed, fmt.Sprintf("invalid label key %q", key), err)
		}
		if len(value) > 127 {
			return apierror.New(apierror.ValidationFailed, fmt.Sprintf("label %q value exceeds 127 characters", key))
		}
	}
	return nil
}

// Plan produces the Kubernetes manifest for spec, dispatching on its
// Mode. ModeLocal and ModeDocker create no Kubernetes object and are
// rejected with BadMode: they belong to the legacy in-process runner,
// out of scope for this core.
func Plan(ctx context.Context, gw *k8s.Gateway, spec JobSpec) (*unstructured.Unstructured, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	scheduling, err := resolveSchedulingLabels(ctx, gw, spec.Scheduling)
	if err != nil {
		return nil, err
	}

	switch spec.Mode {
	case ModeKueue:
		return planJob(spec, scheduling)
	case ModeRayJob:
		return planRayJob(spec, scheduling)
	case ModeLocal, ModeDocker:
		return nil, apierror.New(apierror.BadMode, fmt.Sprintf("execution mode %q creates no Kubernetes object", spec.Mode))
	default:
		return nil, apierror.New(apierror.BadMode, fmt.Sprintf("unsupported execution mode %q", spec.Mode))
	}
}

// resolveSchedulingLabels validates that a requested queue/priority
// class exists and returns the Kueue labels to stamp onto the
// manifest. Keys whose scheduling field is unset are elided entirely
// rather than set to an empty string.
func resolveSchedulingLabels(ctx context.Context, gw *k8s.Gateway, sched SchedulingOptions) (map[string]string, error) {
	labels := map[string]string{}

	if sched.QueueName != nil {
		if !gw.QueueExists(ctx, gw.Namespace(), *sched.QueueName) {
			return nil, apierror.New(apierror.ValidationFailed,
				fmt.Sprintf("Kueue local queue does not exist: %q", *sched.QueueName))
		}
		labels["kueue.x-k8s.io/queue-name"] = *sched.QueueName
	}

	if sched.PriorityClass != nil {
		if !gw.PriorityClassExists(ctx, *sched.PriorityClass) {
			return nil, apierror.New(apierror.ValidationFailed,
				fmt.Sprintf("Kueue workload priority class does not exist: %q", *sched.PriorityClass))
		}
		labels["kueue.x-k8s.io/priority-class"] = *sched.PriorityClass
	}

	return labels, nil
}

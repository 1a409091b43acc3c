// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
	"github.com/flux-subsystem/workload-engine/internal/k8s"
	"github.com/flux-subsystem/workload-engine/internal/planner"
	"github.com/flux-subsystem/workload-engine/internal/runner"
	"github.com/flux-subsystem/workload-engine/internal/workload"
)

// Coordinator orchestrates the Gateway, Workload Model, Status
// Deriver, Submission Planner and runner Registry into the engine's
// five public operations. It holds no state of its own beyond the
// singletons it was constructed with.
type Coordinator struct {
	gw       *k8s.Gateway
	registry *runner.Registry
	log      logr.Logger

	defaultQueueName     string
	defaultPriorityClass string
}

// Defaults configures scheduling defaults applied to a submission
// that does not specify them explicitly.
type Defaults struct {
	QueueName     string
	PriorityClass string
}

// New constructs a Coordinator. gw and registry are process-wide
// singletons, safe for concurrent use by many in-flight requests.
func New(gw *k8s.Gateway, registry *runner.Registry, defaults Defaults, log logr.Logger) *Coordinator {
	return &Coordinator{
		gw:                   gw,
		registry:             registry,
		log:                  log,
		defaultQueueName:     defaults.QueueName,
		defaultPriorityClass: defaults.PriorityClass,
	}
}

// Submit plans and creates the Kubernetes object for spec, returning
// the WorkloadIdentifier of the owning resource Kueue will see. A
// submission that omits scheduling fields falls back to the
// Coordinator's configured defaults rather than being submitted
// unscheduled.
func (c *Coordinator) Submit(ctx context.Context, spec planner.JobSpec) (workload.Identifier, error) {
	if spec.Scheduling.QueueName == nil && c.defaultQueueName != "" {
		spec.Scheduling.QueueName = &c.defaultQueueName
	}
	if spec.Scheduling.PriorityClass == nil && c.defaultPriorityClass != "" {
		spec.Scheduling.PriorityClass = &c.defaultPriorityClass
	}

	created, err := c.registry.Submit(ctx, c.gw, spec)
	if err != nil {
		return workload.Identifier{}, err
	}

	gv := created.GetObjectKind().GroupVersionKind()
	if gv.Empty() {
		// Unstructured objects built by the Planner always carry
		// apiVersion/kind, but fall back to GetAPIVersion/GetKind for
		// objects converted from a typed struct that only set TypeMeta.
		gv.Group, gv.Version = splitAPIVersion(created.GetAPIVersion())
		gv.Kind = created.GetKind()
	}

	c.log.Info("submitted workload", "name", created.GetName(), "namespace", created.GetNamespace(), "kind", gv.Kind)

	return workload.Identifier{
		Group:     gv.Group,
		Version:   gv.Version,
		Kind:      gv.Kind,
		Namespace: created.GetNamespace(),
		UID:       string(created.GetUID()),
	}, nil
}

func splitAPIVersion(apiVersion string) (group, version string) {
	for i := len(apiVersion) - 1; i >= 0; i-- {
		if apiVersion[i] == '/' {
			return apiVersion[:i], apiVersion[i+1:]
		}
	}
	return "", apiVersion
}

// findWorkload locates and decodes the Kueue Workload owned by id.
func (c *Coordinator) findWorkload(ctx context.Context, id workload.Identifier) (*workload.Workload, error) {
	raw, err := c.gw.FindWorkloadByOwnerUID(ctx, id.UID, id.Namespace)
	if err != nil {
		return nil, err
	}
	return workload.FromUnstructured(raw)
}

// Status returns the full WorkloadMetadata for id.
func (c *Coordinator) Status(ctx context.Context, id workload.Identifier) (WorkloadMetadata, error) {
	w, err := c.findWorkload(ctx, id)
	if err != nil {
		return WorkloadMetadata{}, err
	}
	return newWorkloadMetadata(id, w), nil
}

// List enumerates every Workload in namespace, ordered by submission
// timestamp descending to match the CLI presentation convention,
// including full metadata only when includeMetadata is set.
func (c *Coordinator) List(ctx context.Context, namespace string, includeMetadata bool) ([]ListWorkloadEntry, error) {
	raws, err := c.gw.ListWorkloads(ctx, namespace)
	if err != nil {
		return nil, err
	}

	type row struct {
		entry     ListWorkloadEntry
		submitted time.Time
	}

	rows := make([]row, 0, len(raws))
	for i := range raws {
		w, err := workload.FromUnstructured(&raws[i])
		if err != nil {
			// A structurally inconsistent Workload is skipped from List
			// rather than failing the whole listing, matching the read
			// path's tolerance of partially reconciled resources.
			c.log.Info("skipping structurally inconsistent workload", "name", raws[i].GetName(), "error", err.Error())
			continue
		}

		id, err := w.Identifier()
		if err != nil {
			continue
		}

		entry := ListWorkloadEntry{Name: w.Name, Identifier: id}
		if includeMetadata {
			m := newWorkloadMetadata(id, w)
			entry.Metadata = &m
		}
		rows = append(rows, row{entry: entry, submitted: w.SubmissionTimestamp()})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].submitted.After(rows[j].submitted)
	})

	entries := make([]ListWorkloadEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry
	}

	return entries, nil
}

// Logs fetches logs for id's pods. With opts.Stream == false, every
// pod's logs are fetched in pod order and concatenated. Logs itself
// does not stream; streaming goes through StreamPods and the
// multiplexer in multiplex.go.
func (c *Coordinator) Logs(ctx context.Context, id workload.Identifier, opts LogOptions) (string, error) {
	w, err := c.findWorkload(ctx, id)
	if err != nil {
		return "", err
	}

	pods, err := w.Pods(ctx, c.gw)
	if err != nil {
		return "", err
	}
	if len(pods) == 0 {
		return "", apierror.New(apierror.NotFound, "workload has no pods")
	}

	var out []byte
	for _, pod := range pods {
		text, err := c.gw.GetPodLogs(ctx, id.Namespace, pod.Name, opts.Tail)
		if err != nil {
			return "", err
		}
		out = append(out, []byte(fmt.Sprintf("[%s] ", pod.Name))...)
		out = append(out, []byte(text)...)
	}

	return string(out), nil
}

// StreamPods resolves the pods backing id, for use by the HTTP
// layer's streaming log handler (internal/coordinator/multiplex.go).
func (c *Coordinator) StreamPods(ctx context.Context, id workload.Identifier) ([]string, error) {
	w, err := c.findWorkload(ctx, id)
	if err != nil {
		return nil, err
	}
	pods, err := w.Pods(ctx, c.gw)
	if err != nil {
		return nil, err
	}
	if len(pods) == 0 {
		return nil, apierror.New(apierror.NotFound, "workload has no pods")
	}
	names := make([]string, len(pods))
	for i, p := range pods {
		names[i] = p.Name
	}
	return names, nil
}

// Stop terminates id's owning resource via foreground cascading
// delete. A second Stop on an already-gone owner returns NotFound.
func (c *Coordinator) Stop(ctx context.Context, id workload.Identifier) error {
	w, err := c.findWorkload(ctx, id)
	if err != nil {
		return err
	}
	return w.Stop(ctx, c.gw)
}

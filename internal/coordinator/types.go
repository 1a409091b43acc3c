// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package coordinator implements the Lifecycle Coordinator: the
// public contract (Submit/Status/List/Logs/Stop) that everything else
// in this engine exists to serve, plus the net/http surface exposing
// it.
package coordinator

import (
	"time"

	"github.com/flux-subsystem/workload-engine/internal/condition"
	"github.com/flux-subsystem/workload-engine/internal/status"
	"github.com/flux-subsystem/workload-engine/internal/workload"
)

// WorkloadMetadata is the full response aggregate for Status: the
// derived JobStatus plus the raw condition list and every timestamp
// and boolean the Status Deriver computes.
type WorkloadMetadata struct {
	Identifier             workload.Identifier   `json:"identifier"`
	ExecutionStatus        status.JobStatus      `json:"execution_status"`
	Spec                   workload.Spec         `json:"spec"`
	Admission              *workload.Admission   `json:"admission,omitempty"`
	Conditions             []condition.Condition `json:"conditions"`
	SubmissionTimestamp    time.Time             `json:"submission_timestamp"`
	LastAdmissionTimestamp *time.Time            `json:"last_admission_timestamp,omitempty"`
	TerminationTimestamp   *time.Time            `json:"termination_timestamp,omitempty"`
	WasEvicted             bool                  `json:"was_evicted"`
	WasInadmissible        bool                  `json:"was_inadmissible"`
	HasFailedPods          bool                  `json:"has_failed_pods"`
}

func newWorkloadMetadata(id workload.Identifier, w *workload.Workload) WorkloadMetadata {
	m := w.Status()
	return WorkloadMetadata{
		Identifier:             id,
		ExecutionStatus:        m.ExecutionStatus,
		Spec:                   w.Spec,
		Admission:              w.Admission,
		Conditions:             w.Conditions,
		SubmissionTimestamp:    w.SubmissionTimestamp(),
		LastAdmissionTimestamp: m.LastAdmissionTimestamp,
		TerminationTimestamp:   m.TerminationTimestamp,
		WasEvicted:             m.WasEvicted,
		WasInadmissible:        m.WasInadmissible,
		HasFailedPods:          m.HasFailedPods,
	}
}

// ListWorkloadEntry is one row of a List response. Metadata is omitted
// unless the caller asked for it, matching spec.md §3's ListWorkloadEntry.
type ListWorkloadEntry struct {
	Name       string              `json:"name"`
	Identifier workload.Identifier `json:"identifier"`
	Metadata   *WorkloadMetadata   `json:"metadata,omitempty"`
}

// LogOptions controls a Logs call. Tail == -1 means "all lines" and
// must suppress the tailLines parameter on the underlying API call.
type LogOptions struct {
	Stream bool
	Tail   int64
}

// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package status implements the Status Deriver: a pure function
// mapping a Workload's condition list to a single, stable JobStatus.
// It has no dependency on the Kubernetes API.
package status

import (
	"time"

	"github.com/flux-subsystem/workload-engine/internal/condition"
)

// JobStatus is the external, stable execution status of a workload.
type JobStatus string

const (
	Pending      JobStatus = "pending"
	Executing    JobStatus = "executing"
	Succeeded    JobStatus = "succeeded"
	Failed       JobStatus = "failed"
	Inadmissible JobStatus = "inadmissible"
)

// Terminal reports whether s is a terminal status: once observed,
// later decodes of the same resource revision must report the same value.
func (s JobStatus) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Metadata is the set of values the Status Deriver computes from a
// condition list: the JobStatus itself, the three derived booleans,
// and the two condition-derived timestamps (submission_timestamp is
// not derived from conditions, so it is not part of this struct — it
// comes straight from the Workload's creation timestamp).
type Metadata struct {
	ExecutionStatus        JobStatus
	WasEvicted             bool
	WasInadmissible        bool
	HasFailedPods          bool
	LastAdmissionTimestamp *time.Time
	TerminationTimestamp   *time.Time
}

// Derive implements the five-rule table, evaluated in order with
// first-match-wins semantics:
//
//  1. any condition with reason "Succeeded"                              -> succeeded
//  2. else any condition with reason "Failed"                            -> failed
//  3. else any condition with type "Admitted", status true               -> executing
//  4. else any condition with type "QuotaReserved", status false,
//     reason "Inadmissible"                                              -> inadmissible
//  5. else                                                                -> pending
func Derive(conditions []condition.Condition) Metadata {
	m := Metadata{ExecutionStatus: Pending}

	switch {
	case condition.Any(conditions, condition.Query{Reason: "Succeeded"}):
		m.ExecutionStatus = Succeeded
	case condition.Any(conditions, condition.Query{Reason: "Failed"}):
		m.ExecutionStatus = Failed
	case condition.Any(conditions, condition.Query{Type: "Admitted", Status: condition.True()}):
		m.ExecutionStatus = Executing
	case condition.Any(conditions, condition.Query{Type: "QuotaReserved", Status: condition.False(), Reason: "Inadmissible"}):
		m.ExecutionStatus = Inadmissible
	default:
		m.ExecutionStatus = Pending
	}

	m.WasEvicted = condition.Any(conditions, condition.Query{Type: "Evicted"})
	m.WasInadmissible = condition.Any(conditions, condition.Query{
		Type: "QuotaReserved", Status: condition.False(), Reason: "Inadmissible",
	})
	m.HasFailedPods = condition.Any(conditions, condition.Query{Reason: "FailedPods"})

	if admitted := condition.Filter(conditions, condition.Query{Type: "Admitted", Status: condition.True()}); len(admitted) > 0 {
		t := condition.LatestTransition(conditions, condition.Query{Type: "Admitted", Status: condition.True()})
		if !t.IsZero() {
			m.LastAdmissionTimestamp = &t
		}
	}

	if finished := condition.Filter(conditions, condition.Query{Type: "Finished"}); len(finished) > 0 {
		t := condition.LatestTransition(conditions, condition.Query{Type: "Finished"})
		if !t.IsZero() {
			m.TerminationTimestamp = &t
		}
	}

	return m
}

// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package condition implements a small predicate combinator over
// Kubernetes-style status conditions, materialising the repeated
// type/reason/message/status matching that the rest of the engine
// needs into a single, declarative helper.
package condition

import (
	"strconv"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Condition mirrors the shape of a Kueue Workload status condition.
// It is field-compatible with github.com/fluxcd/pkg/apis/meta.Condition,
// which this type intentionally echoes so that conditions decoded from
// unstructured payloads can be handled with the same field names the
// rest of the flux ecosystem uses.
type Condition struct {
	Type               string
	Status             string
	Reason             string
	Message            string
	LastTransitionTime metav1.Time
}

// True reports whether the condition's Status field parses as true
// under strconv.ParseBool ("True", "true", "1", ...).
func (c Condition) True() bool {
	v, err := strconv.ParseBool(c.Status)
	return err == nil && v
}

// False reports whether the condition's Status field parses as false
// under strconv.ParseBool ("False", "false", "0", ...).
func (c Condition) False() bool {
	v, err := strconv.ParseBool(c.Status)
	return err == nil && !v
}

// Query describes a condition predicate. Every non-empty field must
// match for a condition to be selected; a nil Status is a wildcard.
type Query struct {
	Type    string
	Reason  string
	Message string
	Status  *bool
}

func (q Query) matches(c Condition) bool {
	if q.Type != "" && c.Type != q.Type {
		return false
	}
	if q.Reason != "" && c.Reason != q.Reason {
		return false
	}
	if q.Message != "" && c.Message != q.Message {
		return false
	}
	if q.Status != nil {
		v, err := strconv.ParseBool(c.Status)
		if err != nil || v != *q.Status {
			return false
		}
	}
	return true
}

// Filter returns every condition in conditions matching every
// non-zero facet of q. Unknown condition types are simply never
// matched, so inserting new, unrecognised conditions never breaks an
// existing Filter call.
func Filter(conditions []Condition, q Query) []Condition {
	var out []Condition
	for _, c := range conditions {
		if q.matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// Any reports whether at least one condition matches q.
func Any(conditions []Condition, q Query) bool {
	return len(Filter(conditions, q)) > 0
}

// boolPtr is a small convenience used by callers building a Query
// literal inline.
func boolPtr(b bool) *bool { return &b }

// True builds a Query fragment requiring Status to parse as true.
func True() *bool { return boolPtr(true) }

// False builds a Query fragment requiring Status to parse as false.
func False() *bool { return boolPtr(false) }

// LatestTransition returns the most recent LastTransitionTime among
// conditions matching q, or the zero time if none match.
func LatestTransition(conditions []Condition, q Query) time.Time {
	var latest time.Time
	for _, c := range Filter(conditions, q) {
		t := c.LastTransitionTime.Time
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}

// FromUnstructured decodes a raw status.conditions slice (as decoded
// from JSON/unstructured content, i.e. []interface{} of
// map[string]interface{}) into a []Condition. Entries missing
// required string fields are skipped rather than causing the whole
// decode to fail, matching the source's tolerance of partially
// populated conditions while a Workload is still being reconciled.
func FromUnstructured(raw []interface{}) []Condition {
	out := make([]Condition, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		c := Condition{
			Type:    stringField(m, "type"),
			Status:  stringField(m, "status"),
			Reason:  stringField(m, "reason"),
			Message: stringField(m, "message"),
		}
		if ts := stringField(m, "lastTransitionTime"); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				c.LastTransitionTime = metav1.NewTime(t)
			}
		}
		if c.Type == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

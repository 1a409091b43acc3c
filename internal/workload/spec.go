// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package workload

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// PodSetSpec mirrors one entry of the Kueue Workload's spec.podSets —
// the pod-set descriptors spec.md §3 lists among Workload's essential
// attributes.
type PodSetSpec struct {
	Name  string `json:"name"`
	Count int32  `json:"count"`
}

// Spec mirrors the subset of the Kueue Workload's spec this engine
// surfaces: pod-set descriptors, queue name, active flag and priority.
type Spec struct {
	PodSets   []PodSetSpec `json:"pod_sets"`
	QueueName string       `json:"queue_name"`
	Active    bool         `json:"active"`
	Priority  int32        `json:"priority"`
}

// Admission mirrors the Kueue Workload's status.admission object. It
// is nil until Kueue admits the Workload to a ClusterQueue.
type Admission struct {
	ClusterQueue string `json:"cluster_queue"`
}

// decodeSpec reads podSets/queueName/active/priority from a Workload's
// spec map. active defaults to true when absent, matching the
// Kueue API's own default for an omitted spec.active field.
func decodeSpec(obj map[string]interface{}) Spec {
	s := Spec{Active: true}

	if raw, found, _ := unstructured.NestedSlice(obj, "podSets"); found {
		s.PodSets = make([]PodSetSpec, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			name, _, _ := unstructured.NestedString(m, "name")
			count, _, _ := unstructured.NestedInt64(m, "count")
			s.PodSets = append(s.PodSets, PodSetSpec{Name: name, Count: int32(count)})
		}
	}

	if v, found, _ := unstructured.NestedString(obj, "queueName"); found {
		s.QueueName = v
	}
	if v, found, _ := unstructured.NestedBool(obj, "active"); found {
		s.Active = v
	}
	if v, found, _ := unstructured.NestedInt64(obj, "priority"); found {
		s.Priority = int32(v)
	}

	return s
}

// decodeAdmission reads clusterQueue from a Workload's
// status.admission map.
func decodeAdmission(obj map[string]interface{}) Admission {
	clusterQueue, _, _ := unstructured.NestedString(obj, "clusterQueue")
	return Admission{ClusterQueue: clusterQueue}
}

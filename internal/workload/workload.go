// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package workload implements the Workload Model: the domain object
// representing a Kueue Workload joined with its owning resource, and
// the owner-kind polymorphism (§9 "Polymorphism over owner kinds")
// used to discover the pods backing it.
package workload

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
	"github.com/flux-subsystem/workload-engine/internal/condition"
	"github.com/flux-subsystem/workload-engine/internal/k8s"
	"github.com/flux-subsystem/workload-engine/internal/status"
)

// Identifier uniquely identifies the owning resource of a Workload —
// tuple (group, version, kind, namespace, uid).
type Identifier struct {
	Group     string `json:"group"`
	Version   string `json:"version"`
	Kind      string `json:"kind"`
	Namespace string `json:"namespace"`
	UID       string `json:"uid"`
}

// Workload is the decoded domain shape of a Kueue Workload, with a
// memoised owner UID — the only in-memory cache the engine keeps
// (spec.md §3), scoped to a single request's Workload instance and
// never shared across requests.
type Workload struct {
	raw *unstructured.Unstructured

	Name              string
	Namespace         string
	CreationTimestamp time.Time
	OwnerReferences   []metav1.OwnerReference
	Conditions        []condition.Condition
	Spec              Spec
	Admission         *Admission

	ownerUID *string
}

// FromUnstructured decodes a raw Kueue Workload payload into a
// Workload, validating the single-owner-reference invariant from
// spec.md §3 and §4.2.
func FromUnstructured(obj *unstructured.Unstructured) (*Workload, error) {
	w := &Workload{raw: obj, Name: obj.GetName(), Namespace: obj.GetNamespace()}
	w.CreationTimestamp = obj.GetCreationTimestamp().Time
	w.OwnerReferences = obj.GetOwnerReferences()

	if len(w.OwnerReferences) != 1 {
		return nil, apierror.New(apierror.InvalidWorkload,
			fmt.Sprintf("workload %s has %d owner references, expected exactly one", w.Name, len(w.OwnerReferences)))
	}

	raw, found, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if found {
		w.Conditions = condition.FromUnstructured(raw)
	}

	if specMap, found, _ := unstructured.NestedMap(obj.Object, "spec"); found {
		w.Spec = decodeSpec(specMap)
	} else {
		w.Spec = Spec{Active: true}
	}

	if admissionMap, found, _ := unstructured.NestedMap(obj.Object, "status", "admission"); found {
		admission := decodeAdmission(admissionMap)
		w.Admission = &admission
	}

	return w, nil
}

// Owner returns the single owner reference validated at construction time.
func (w *Workload) Owner() metav1.OwnerReference {
	return w.OwnerReferences[0]
}

// OwnerUID returns the owning resource's UID, memoising it on first access.
func (w *Workload) OwnerUID() string {
	if w.ownerUID == nil {
		uid := string(w.Owner().UID)
		w.ownerUID = &uid
	}
	return *w.ownerUID
}

// Identifier constructs a Workload Identifier from the memoised owner
// reference, grounded on jobq_server/models.py's
// WorkloadIdentifier.from_kueue_workload.
func (w *Workload) Identifier() (Identifier, error) {
	owner := w.Owner()
	gv, err := parseAPIVersion(owner.APIVersion)
	if err != nil {
		return Identifier{}, apierror.Wrap(apierror.InvalidWorkload,
			fmt.Sprintf("workload %s has unparseable owner apiVersion %q", w.Name, owner.APIVersion), err)
	}
	return Identifier{
		Group:     gv.group,
		Version:   gv.version,
		Kind:      owner.Kind,
		Namespace: w.Namespace,
		UID:       string(owner.UID),
	}, nil
}

type groupVersion struct{ group, version string }

func parseAPIVersion(apiVersion string) (groupVersion, error) {
	for i := len(apiVersion) - 1; i >= 0; i-- {
		if apiVersion[i] == '/' {
			return groupVersion{group: apiVersion[:i], version: apiVersion[i+1:]}, nil
		}
	}
	if apiVersion == "" {
		return groupVersion{}, fmt.Errorf("empty apiVersion")
	}
	return groupVersion{group: "", version: apiVersion}, nil
}

// Status derives the externally visible execution status and the
// three derived booleans from the Workload's condition list.
func (w *Workload) Status() status.Metadata {
	return status.Derive(w.Conditions)
}

// SubmissionTimestamp is the Workload metadata creation time.
func (w *Workload) SubmissionTimestamp() time.Time { return w.CreationTimestamp }

// Pods discovers every pod backing this Workload through the
// owner-kind-specific strategy. Kinds outside {Job, RayJob} fail with
// UnsupportedKind.
func (w *Workload) Pods(ctx context.Context, gw *k8s.Gateway) ([]corev1.Pod, error) {
	strategy, err := strategyFor(w.Owner().Kind)
	if err != nil {
		return nil, err
	}
	return strategy.pods(ctx, gw, w.Namespace, w.Owner())
}

// Stop resolves the owning resource and deletes it with Foreground
// propagation so Kubernetes cascades termination to every child
// object (submission Job, Ray cluster, pods). A second Stop on an
// already-deleted owner returns NotFound.
func (w *Workload) Stop(ctx context.Context, gw *k8s.Gateway) error {
	owner := w.Owner()
	gv, err := parseAPIVersion(owner.APIVersion)
	if err != nil {
		return apierror.Wrap(apierror.InvalidWorkload, "unparseable owner apiVersion", err)
	}

	if _, err := gw.ResolveOwner(ctx, owner, w.Namespace); err != nil {
		return err
	}

	gvk := k8s.GVK{Group: gv.group, Version: gv.version, Kind: owner.Kind}
	if err := gw.DeleteResource(ctx, gvk, owner.Name, w.Namespace, k8s.Foreground); err != nil {
		return err
	}
	return nil
}

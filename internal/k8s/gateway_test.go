// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package k8s

import (
	"context"
	"testing"

	fluxcache "github.com/fluxcd/pkg/cache"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
)

func newTestGateway(t *testing.T, objs ...runtime.Object) *Gateway {
	t.Helper()
	scheme := runtime.NewScheme()
	g := NewWithT(t)
	g.Expect(corev1.AddToScheme(scheme)).To(Succeed())

	workloadGVK := schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "Workload"}
	localQueueGVK := schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "LocalQueue"}
	jobGVK := schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "Job"}
	for _, gvk := range []schema.GroupVersionKind{workloadGVK, localQueueGVK, jobGVK} {
		scheme.AddKnownTypeWithName(gvk, &unstructured.Unstructured{})
		listGVK := schema.GroupVersionKind{Group: gvk.Group, Version: gvk.Version, Kind: gvk.Kind + "List"}
		scheme.AddKnownTypeWithName(listGVK, &unstructured.UnstructuredList{})
	}

	builder := fake.NewClientBuilder().WithScheme(scheme)
	for _, obj := range objs {
		if u, ok := obj.(*unstructured.Unstructured); ok {
			builder = builder.WithRuntimeObjects(u)
		}
	}
	for _, obj := range objs {
		if _, ok := obj.(*unstructured.Unstructured); !ok {
			builder = builder.WithRuntimeObjects(obj)
		}
	}

	cache, err := fluxcache.NewLRU[bool](discoveryCacheSize)
	g.Expect(err).NotTo(HaveOccurred())

	return &Gateway{
		client:         builder.Build(),
		namespace:      "default",
		discoveryCache: cache,
	}
}

func newWorkload(name, ns, ownerUID string) *unstructured.Unstructured {
	w := &unstructured.Unstructured{}
	w.SetGroupVersionKind(schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "Workload"})
	w.SetName(name)
	w.SetNamespace(ns)
	w.SetLabels(map[string]string{queueUIDLabel: ownerUID})
	_ = unstructured.SetNestedMap(w.Object, map[string]interface{}{}, "status")
	return w
}

func TestFindWorkloadByOwnerUID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		g := NewWithT(t)
		gw := newTestGateway(t, newWorkload("w1", "default", "abc"))

		found, err := gw.FindWorkloadByOwnerUID(context.Background(), "abc", "default")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(found.GetName()).To(Equal("w1"))
	})

	t.Run("not found", func(t *testing.T) {
		g := NewWithT(t)
		gw := newTestGateway(t)

		_, err := gw.FindWorkloadByOwnerUID(context.Background(), "missing", "default")
		g.Expect(err).To(HaveOccurred())
		g.Expect(apierror.KindOf(err)).To(Equal(apierror.NotFound))
	})
}

func TestListWorkloads(t *testing.T) {
	g := NewWithT(t)
	gw := newTestGateway(t, newWorkload("w1", "default", "a"), newWorkload("w2", "default", "b"))

	items, err := gw.ListWorkloads(context.Background(), "default")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(items).To(HaveLen(2))
}

func TestListPods(t *testing.T) {
	g := NewWithT(t)
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: "pod-1", Namespace: "default",
			Labels: map[string]string{"controller-uid": "job-1"},
		},
	}
	gw := newTestGateway(t, pod)

	req, err := labels.NewRequirement("controller-uid", "=", []string{"job-1"})
	g.Expect(err).NotTo(HaveOccurred())
	selector := labels.NewSelector().Add(*req)

	pods, err := gw.ListPods(context.Background(), "default", selector)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(pods).To(HaveLen(1))
	g.Expect(pods[0].Name).To(Equal("pod-1"))
}

func TestDeleteResource_NotFound(t *testing.T) {
	g := NewWithT(t)
	gw := newTestGateway(t)

	err := gw.DeleteResource(context.Background(), GVK{Group: "batch", Version: "v1", Kind: "Job"}, "missing", "default", Foreground)
	g.Expect(err).To(HaveOccurred())
	g.Expect(apierror.KindOf(err)).To(Equal(apierror.NotFound))
}

func TestQueueExists(t *testing.T) {
	g := NewWithT(t)
	queue := &unstructured.Unstructured{}
	queue.SetGroupVersionKind(schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "LocalQueue"})
	queue.SetName("user-queue")
	queue.SetNamespace("default")

	gw := newTestGateway(t, queue)

	g.Expect(gw.QueueExists(context.Background(), "default", "user-queue")).To(BeTrue())
	g.Expect(gw.QueueExists(context.Background(), "default", "missing-queue")).To(BeFalse())
}

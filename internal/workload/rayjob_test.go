// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package workload

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
	"github.com/flux-subsystem/workload-engine/internal/k8s"
)

func newRayJobTestGateway(t *testing.T, objs ...runtime.Object) *k8s.Gateway {
	t.Helper()
	g := NewWithT(t)

	scheme := runtime.NewScheme()
	g.Expect(corev1.AddToScheme(scheme)).To(Succeed())

	jobGVK := schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "Job"}
	scheme.AddKnownTypeWithName(jobGVK, &unstructured.Unstructured{})
	scheme.AddKnownTypeWithName(schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "JobList"}, &unstructured.UnstructuredList{})

	builder := fake.NewClientBuilder().WithScheme(scheme)
	for _, obj := range objs {
		builder = builder.WithRuntimeObjects(obj)
	}

	return k8s.NewForTesting(builder.Build(), nil, "default", logr.Discard())
}

func submissionJob(name, namespace, rayJobName string) *unstructured.Unstructured {
	j := &unstructured.Unstructured{}
	j.SetGroupVersionKind(schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "Job"})
	j.SetName(name)
	j.SetNamespace(namespace)
	j.SetUID(types.UID(name + "-uid"))
	j.SetLabels(map[string]string{
		"ray.io/originated-from-crd":     "RayJob",
		"ray.io/originated-from-cr-name": rayJobName,
	})
	return j
}

func TestRayJobStrategy_Pods_NoSubmissionJob(t *testing.T) {
	g := NewWithT(t)
	gw := newRayJobTestGateway(t)

	_, err := rayJobStrategy{}.pods(context.Background(), gw, "default", metav1.OwnerReference{Name: "my-rayjob"})
	g.Expect(err).To(HaveOccurred())
	g.Expect(apierror.KindOf(err)).To(Equal(apierror.NotFound))
}

func TestRayJobStrategy_Pods_MultipleSubmissionJobsIsInvalidWorkload(t *testing.T) {
	g := NewWithT(t)
	gw := newRayJobTestGateway(t,
		submissionJob("job-1", "default", "my-rayjob"),
		submissionJob("job-2", "default", "my-rayjob"),
	)

	_, err := rayJobStrategy{}.pods(context.Background(), gw, "default", metav1.OwnerReference{Name: "my-rayjob"})
	g.Expect(err).To(HaveOccurred())
	g.Expect(apierror.KindOf(err)).To(Equal(apierror.InvalidWorkload))
}

func TestRayJobStrategy_Pods_SingleSubmissionJob(t *testing.T) {
	g := NewWithT(t)
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "pod-1",
			Namespace: "default",
			Labels:    map[string]string{"controller-uid": "job-1-uid"},
		},
	}
	gw := newRayJobTestGateway(t, submissionJob("job-1", "default", "my-rayjob"), pod)

	pods, err := rayJobStrategy{}.pods(context.Background(), gw, "default", metav1.OwnerReference{Name: "my-rayjob"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(pods).To(HaveLen(1))
	g.Expect(pods[0].Name).To(Equal("pod-1"))
}

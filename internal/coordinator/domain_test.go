// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package coordinator

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
	"github.com/flux-subsystem/workload-engine/internal/planner"
	"github.com/flux-subsystem/workload-engine/internal/runner"
)

// newDomainTestGateway wires up a fake client carrying the GVKs this
// suite's submission Factory and the Coordinator's own read paths
// need: Job (the submission target), Workload (Kueue's admission
// record) and LocalQueue (scheduling validation).
func newDomainTestGateway(t *testing.T, objs ...runtime.Object) *k8s.Gateway {
	t.Helper()
	g := NewWithT(t)

	scheme := runtime.NewScheme()
	g.Expect(corev1.AddToScheme(scheme)).To(Succeed())

	for _, gvk := range []schema.GroupVersionKind{
		{Group: "batch", Version: "v1", Kind: "Job"},
		{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "Workload"},
		{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "LocalQueue"},
	} {
		scheme.AddKnownTypeWithName(gvk, &unstructured.Unstructured{})
		listGVK := schema.GroupVersionKind{Group: gvk.Group, Version: gvk.Version, Kind: gvk.Kind + "List"}
		scheme.AddKnownTypeWithName(listGVK, &unstructured.UnstructuredList{})
	}

	builder := fake.NewClientBuilder().WithScheme(scheme)
	for _, obj := range objs {
		builder = builder.WithRuntimeObjects(obj)
	}

	return k8s.NewForTesting(builder.Build(), nil, "default", logr.Discard())
}

func localQueue(name, namespace string) *unstructured.Unstructured {
	q := &unstructured.Unstructured{}
	q.SetGroupVersionKind(schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "LocalQueue"})
	q.SetName(name)
	q.SetNamespace(namespace)
	return q
}

// kueueWorkload builds a Kueue Workload carrying the job-uid label the
// real Gateway selects on, with an owner reference back to job and a
// condition list that status.Derive can read.
func kueueWorkload(name, namespace, ownerUID, jobName string, conditions []map[string]interface{}) *unstructured.Unstructured {
	w := &unstructured.Unstructured{}
	w.SetGroupVersionKind(schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "Workload"})
	w.SetName(name)
	w.SetNamespace(namespace)
	w.SetLabels(map[string]string{"kueue.x-k8s.io/job-uid": ownerUID})
	w.SetOwnerReferences([]metav1.OwnerReference{
		{APIVersion: "batch/v1", Kind: "Job", Name: jobName, UID: types.UID(ownerUID)},
	})
	conds := make([]interface{}, len(conditions))
	for i, c := range conditions {
		conds[i] = c
	}
	_ = unstructured.SetNestedSlice(w.Object, conds, "status", "conditions")
	_ = unstructured.SetNestedField(w.Object, "team-a-queue", "spec", "queueName")
	return w
}

// testRegistry builds a Registry whose sole Factory creates a batch/v1
// Job with an explicit name and UID, bypassing planner.Plan's
// GenerateName so the fake client's Create is deterministic. It still
// exercises the Coordinator's own scheduling-defaults and GVK-recovery
// logic in Submit.
func testRegistry(jobName, jobUID string) *runner.Registry {
	return runner.NewRegistry(map[planner.ExecutionMode]runner.Factory{
		planner.ModeKueue: func(ctx context.Context, gw *k8s.Gateway, spec planner.JobSpec) (*unstructured.Unstructured, error) {
			if err := spec.Validate(); err != nil {
				return nil, err
			}
			if spec.Scheduling.QueueName != nil && !gw.QueueExists(ctx, gw.Namespace(), *spec.Scheduling.QueueName) {
				return nil, apierror.New(apierror.ValidationFailed, "queue does not exist")
			}
			job := &unstructured.Unstructured{}
			job.SetGroupVersionKind(schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "Job"})
			job.SetName(jobName)
			job.SetUID(types.UID(jobUID))
			return gw.CreateBatchJob(ctx, gw.Namespace(), job)
		},
	})
}

func TestCoordinator_SubmitStatusStop(t *testing.T) {
	g := NewWithT(t)

	gw := newDomainTestGateway(t, localQueue("team-a-queue", "default"))
	reg := testRegistry("my-job", "job-uid-1")
	c := New(gw, reg, Defaults{}, logr.Discard())

	queueName := "team-a-queue"
	id, err := c.Submit(context.Background(), planner.JobSpec{
		Name:     "my-job",
		ImageRef: "example.com/image:latest",
		Mode:     planner.ModeKueue,
		Scheduling: planner.SchedulingOptions{
			QueueName: &queueName,
		},
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(id.Kind).To(Equal("Job"))
	g.Expect(id.UID).To(Equal("job-uid-1"))

	// Kueue admits the submitted Job by creating a Workload that
	// references it; the fake client has no controller to do this, so
	// the test creates it directly to stand in for that reconciliation.
	workload := kueueWorkload("my-job-abc12", "default", id.UID, "my-job", []map[string]interface{}{
		{"type": "Admitted", "status": "True", "reason": "Admitted", "message": ""},
	})
	_, err = gw.CreateBatchJob(context.Background(), "default", workload)
	g.Expect(err).NotTo(HaveOccurred())

	meta, err := c.Status(context.Background(), id)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(meta.Spec.QueueName).To(Equal("team-a-queue"))
	g.Expect(meta.Identifier).To(Equal(id))

	g.Expect(c.Stop(context.Background(), id)).To(Succeed())

	err = c.Stop(context.Background(), id)
	g.Expect(err).To(HaveOccurred())
}

func TestCoordinator_Submit_NonExistentQueueFails(t *testing.T) {
	g := NewWithT(t)

	gw := newDomainTestGateway(t)
	reg := testRegistry("my-job", "job-uid-1")
	c := New(gw, reg, Defaults{}, logr.Discard())

	queueName := "no-such-queue"
	_, err := c.Submit(context.Background(), planner.JobSpec{
		Name:     "my-job",
		ImageRef: "example.com/image:latest",
		Mode:     planner.ModeKueue,
		Scheduling: planner.SchedulingOptions{
			QueueName: &queueName,
		},
	})
	g.Expect(err).To(HaveOccurred())
	g.Expect(apierror.KindOf(err)).To(Equal(apierror.ValidationFailed))
}

func TestCoordinator_Submit_BadImageRefFailsValidation(t *testing.T) {
	g := NewWithT(t)

	gw := newDomainTestGateway(t)
	c := New(gw, testRegistry("my-job", "job-uid-1"), Defaults{}, logr.Discard())

	_, err := c.Submit(context.Background(), planner.JobSpec{
		Name:     "my-job",
		ImageRef: "not a valid ref!!",
		Mode:     planner.ModeKueue,
	})
	g.Expect(err).To(HaveOccurred())
}

func TestCoordinator_List_IncludesMetadataWhenRequested(t *testing.T) {
	g := NewWithT(t)

	gw := newDomainTestGateway(t)
	c := New(gw, testRegistry("my-job", "job-uid-1"), Defaults{}, logr.Discard())

	workload := kueueWorkload("my-job-abc12", "default", "job-uid-1", "my-job", []map[string]interface{}{
		{"type": "Admitted", "status": "True", "reason": "Admitted", "message": ""},
	})
	_, err := gw.CreateBatchJob(context.Background(), "default", workload)
	g.Expect(err).NotTo(HaveOccurred())

	withoutMeta, err := c.List(context.Background(), "default", false)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(withoutMeta).To(HaveLen(1))
	g.Expect(withoutMeta[0].Metadata).To(BeNil())

	withMeta, err := c.List(context.Background(), "default", true)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(withMeta).To(HaveLen(1))
	g.Expect(withMeta[0].Metadata).NotTo(BeNil())
	g.Expect(withMeta[0].Metadata.Spec.QueueName).To(Equal("team-a-queue"))
}

// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package workload

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
	"github.com/flux-subsystem/workload-engine/internal/k8s"
)

// rayJobStrategy discovers the pods of a ray.io/v1 RayJob owner
// through the two-level indirection KubeRay uses: the RayJob creates
// a submission Job labelled with its own name, and that Job's own
// controller-uid selects the pods actually running the submission.
type rayJobStrategy struct{}

func (rayJobStrategy) pods(ctx context.Context, gw *k8s.Gateway, namespace string, owner metav1.OwnerReference) ([]corev1.Pod, error) {
	sel := labels.SelectorFromSet(labels.Set{
		"ray.io/originated-from-crd":     "RayJob",
		"ray.io/originated-from-cr-name": owner.Name,
	})

	jobs, err := gw.ListJobs(ctx, namespace, sel)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, apierror.New(apierror.NotFound,
			fmt.Sprintf("no submission job found for RayJob %s", owner.Name))
	}
	if len(jobs) > 1 {
		return nil, apierror.New(apierror.InvalidWorkload,
			fmt.Sprintf("expected exactly one submission job for RayJob %s, found %d, structurally inconsistent", owner.Name, len(jobs)))
	}

	submissionJob := jobs[0]
	uid := string(submissionJob.GetUID())

	return gw.ListPods(ctx, namespace, controllerUIDSelector(uid))
}

// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package workload

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/flux-subsystem/workload-engine/internal/k8s"
)

// plainJobStrategy discovers the pods of a batch/v1 Job owner
// directly: Kubernetes labels every pod a Job creates with
// controller-uid set to the Job's own UID.
type plainJobStrategy struct{}

func (plainJobStrategy) pods(ctx context.Context, gw *k8s.Gateway, namespace string, owner metav1.OwnerReference) ([]corev1.Pod, error) {
	return gw.ListPods(ctx, namespace, controllerUIDSelector(string(owner.UID)))
}

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

// ownerStrategy resolves the pods backing a Workload's owning
// resource. Each supported owner Kind gets its own tagged variant
// rather than a single function branching on a kind string; adding a
// new owner kind means adding a new strategy type and one case to
// strategyFor.
type ownerStrategy interface {
	pods(ctx context.Context, gw *k8s.Gateway, namespace string, owner metav1.OwnerReference) ([]corev1.Pod, error)
}

func strategyFor(kind string) (ownerStrategy, error) {
	switch kind {
	case "Job":
		return plainJobStrategy{}, nil
	case "RayJob":
		return rayJobStrategy{}, nil
	default:
		return nil, apierror.New(apierror.UnsupportedKind,
			fmt.Sprintf("owner kind %q is not supported; expected Job or RayJob", kind))
	}
}

// controllerUIDSelector builds the selector Kubernetes itself attaches
// to every pod a batch/v1 Job creates.
func controllerUIDSelector(uid string) labels.Selector {
	return labels.SelectorFromSet(labels.Set{"controller-uid": uid})
}

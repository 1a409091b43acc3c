// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package planner

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

const gpuResourceName = corev1.ResourceName("nvidia.com/gpu")

// toResourceList renders ResourceOptions into the Kubernetes
// ResourceList shape shared by requests and limits; unset fields are
// simply absent rather than zero-valued.
func toResourceList(opts ResourceOptions) (corev1.ResourceList, error) {
	list := corev1.ResourceList{}

	if opts.CPU != "" {
		q, err := resource.ParseQuantity(opts.CPU)
		if err != nil {
			return nil, err
		}
		list[corev1.ResourceCPU] = q
	}
	if opts.Memory != "" {
		q, err := resource.ParseQuantity(opts.Memory)
		if err != nil {
			return nil, err
		}
		list[corev1.ResourceMemory] = q
	}
	if opts.GPU != "" {
		q, err := resource.ParseQuantity(opts.GPU)
		if err != nil {
			return nil, err
		}
		list[gpuResourceName] = q
	}

	return list, nil
}

func toResourceRequirements(opts ResourceOptions) (corev1.ResourceRequirements, error) {
	list, err := toResourceList(opts)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}
	return corev1.ResourceRequirements{Requests: list, Limits: list}, nil
}

// resourceRequirementsToUnstructured renders a ResourceRequirements as
// the plain map the RayJob manifest needs, since RayJob's container
// spec is built as unstructured content rather than a typed corev1.Container.
func resourceRequirementsToUnstructured(r corev1.ResourceRequirements) (map[string]interface{}, error) {
	toMap := func(list corev1.ResourceList) map[string]interface{} {
		out := make(map[string]interface{}, len(list))
		for name, qty := range list {
			out[string(name)] = qty.String()
		}
		return out
	}
	return map[string]interface{}{
		"requests": toMap(r.Requests),
		"limits":   toMap(r.Limits),
	}, nil
}

// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package planner

import (
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
)

// defaultParallelism preserves the source's hardcoded parallelism=3
// convention, per the Open Questions resolution to reproduce it rather
// than silently changing observable submission behaviour.
const defaultParallelism = 3

// executorCommand builds the in-container entrypoint invocation that
// drives spec's entrypoint file through the executor.
func executorCommand(spec JobSpec) []string {
	return []string{"jobs_execute", spec.EntrypointFile, spec.Name}
}

// planJob builds the batch/v1 Job manifest for ModeKueue, suspended so
// that Kueue controls when it actually starts running.
func planJob(spec JobSpec, schedulingLabels map[string]string) (*unstructured.Unstructured, error) {
	annotations, err := buildAnnotations(spec.Labels, spec.SubmissionContext)
	if err != nil {
		return nil, apierror.Wrap(apierror.ValidationFailed, "failed to encode submission context", err)
	}

	resources, err := toResourceRequirements(spec.Resources)
	if err != nil {
		return nil, apierror.Wrap(apierror.ValidationFailed, "invalid resource quantity", err)
	}

	parallelism := int32(defaultParallelism)

	job := &batchv1.Job{
		TypeMeta: metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: sanitizeRFC1123(spec.Name) + "-",
			Labels:       schedulingLabels,
			Annotations:  annotations,
		},
		Spec: batchv1.JobSpec{
			Parallelism: &parallelism,
			Suspend:     boolPtr(true),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:            "workload",
							Image:           spec.ImageRef,
							ImagePullPolicy: corev1.PullIfNotPresent,
							Command:         executorCommand(spec),
							Resources:       resources,
						},
					},
				},
			},
		},
	}

	out, err := runtime.DefaultUnstructuredConverter.ToUnstructured(job)
	if err != nil {
		return nil, apierror.Wrap(apierror.APIError, fmt.Sprintf("failed to encode job %q", spec.Name), err)
	}

	return &unstructured.Unstructured{Object: out}, nil
}

func boolPtr(b bool) *bool { return &b }

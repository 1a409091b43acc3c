// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package planner

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
)

// defaultRayVersion is used when a JobSpec does not override it. It
// replaces the hardcoded rayClusterSpec.rayVersion the source left
// behind with a FIXME comment.
const defaultRayVersion = "2.34.0"

// minRayVersionConstraint is the floor a RayVersion override must satisfy.
var minRayVersionConstraint = mustConstraint(">= 2.9.0")

func mustConstraint(c string) *semver.Constraints {
	cons, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cons
}

const jobIDSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomSuffix mirrors the source's random.choices(ascii_lowercase +
// digits, k=4) job id suffix.
func randomSuffix() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, 4)
	for i, v := range b {
		out[i] = jobIDSuffixAlphabet[int(v)%len(jobIDSuffixAlphabet)]
	}
	return string(out), nil
}

// shellQuote single-quotes s for safe inclusion in a POSIX shell
// command line, matching Python's shlex.quote semantics for the
// entrypoint command join.
func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`|&;()<>*?[]{}~!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func resolveRayVersion(override string) (string, error) {
	if override == "" {
		return defaultRayVersion, nil
	}
	v, err := semver.NewVersion(override)
	if err != nil {
		return "", fmt.Errorf("not a valid Ray version: %q: %w", override, err)
	}
	if !minRayVersionConstraint.Check(v) {
		return "", fmt.Errorf("Ray version %q does not satisfy the minimum supported constraint %q", override, minRayVersionConstraint.String())
	}
	return override, nil
}

// planRayJob builds the ray.io/v1 RayJob manifest for ModeRayJob.
// There is no typed Go API for KubeRay's CRDs in this module's
// dependency set, so the manifest is built directly as unstructured
// content, matching the source's own dict-literal construction.
func planRayJob(spec JobSpec, schedulingLabels map[string]string) (*unstructured.Unstructured, error) {
	annotations, err := buildAnnotations(spec.Labels, spec.SubmissionContext)
	if err != nil {
		return nil, apierror.Wrap(apierror.ValidationFailed, "failed to encode submission context", err)
	}

	resources, err := toResourceRequirements(spec.Resources)
	if err != nil {
		return nil, apierror.Wrap(apierror.ValidationFailed, "invalid resource quantity", err)
	}
	requirementsMap, err := resourceRequirementsToUnstructured(resources)
	if err != nil {
		return nil, apierror.Wrap(apierror.APIError, "failed to encode resource requirements", err)
	}

	rayVersion, err := resolveRayVersion(spec.Resources.RayVersion)
	if err != nil {
		return nil, apierror.Wrap(apierror.ValidationFailed, "invalid ray version override", err)
	}

	suffix, err := randomSuffix()
	if err != nil {
		return nil, apierror.Wrap(apierror.APIError, "failed to generate job id suffix", err)
	}
	jobID := fmt.Sprintf("%s-%s", spec.Name, suffix)

	runtimeEnv, err := yaml.Marshal(map[string]string{"working_dir": "/home/ray/app"})
	if err != nil {
		return nil, apierror.Wrap(apierror.APIError, "failed to encode runtime env", err)
	}

	manifest := map[string]interface{}{
		"apiVersion": "ray.io/v1",
		"kind":       "RayJob",
		"metadata": map[string]interface{}{
			"generateName": sanitizeRFC1123(jobID) + "-",
			"labels":       toStringInterfaceMap(schedulingLabels),
			"annotations":  toStringInterfaceMap(annotations),
		},
		"spec": map[string]interface{}{
			"jobId":                    jobID,
			"suspend":                  true,
			"entrypoint":               shellJoin(executorCommand(spec)),
			"runtimeEnvYAML":           string(runtimeEnv),
			"shutdownAfterJobFinishes": true,
			"rayClusterSpec": map[string]interface{}{
				"rayVersion": rayVersion,
				"headGroupSpec": map[string]interface{}{
					"rayStartParams": map[string]interface{}{
						"dashboard-host":      "0.0.0.0",
						"disable-usage-stats": "true",
					},
					"template": map[string]interface{}{
						"spec": map[string]interface{}{
							"containers": []interface{}{
								map[string]interface{}{
									"name":            "head",
									"image":           spec.ImageRef,
									"imagePullPolicy": "IfNotPresent",
									"resources":       requirementsMap,
								},
							},
						},
					},
				},
			},
			"submitterPodTemplate": map[string]interface{}{
				"spec": map[string]interface{}{
					"restartPolicy": "Never",
					"containers": []interface{}{
						map[string]interface{}{
							"name":            "ray-submit",
							"image":           spec.ImageRef,
							"imagePullPolicy": "IfNotPresent",
						},
					},
				},
			},
		},
	}

	return &unstructured.Unstructured{Object: manifest}, nil
}

func toStringInterfaceMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

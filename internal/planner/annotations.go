// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package planner

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const submissionContextAnnotation = "x-jobq.io/submission-context"

// sanitizeRFC1123 produces a name metadata.generateName will accept.
// The original source only replaces underscores with dashes and
// admits in a comment that this is "wildly incomplete"; gosimple/slug
// gives a complete transliteration instead. slug keeps underscores,
// which RFC 1123 does not allow, so they are replaced with dashes.
func sanitizeRFC1123(name string) string {
	return strings.ReplaceAll(slug.Make(name), "_", "-")
}

// buildAnnotations stores the user-supplied labels as annotations
// (Kubernetes label values are too restrictive for arbitrary user
// content) and, if a submission context was supplied, serialises it as
// JSON under x-jobq.io/submission-context with an additional
// _correlation_id key (a fresh UUID) stamped in. The id is written
// only to this annotation; no log line records it.
func buildAnnotations(userLabels map[string]string, submissionContext map[string]any) (map[string]string, error) {
	annotations := make(map[string]string, len(userLabels)+1)
	for k, v := range userLabels {
		annotations[k] = v
	}

	if len(submissionContext) > 0 {
		ctx := make(map[string]any, len(submissionContext)+1)
		for k, v := range submissionContext {
			ctx[k] = v
		}
		ctx["_correlation_id"] = uuid.NewString()

		payload, err := json.Marshal(ctx)
		if err != nil {
			return nil, err
		}
		annotations[submissionContextAnnotation] = string(payload)
	}

	return annotations, nil
}

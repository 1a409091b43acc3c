// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package planner

import (
	"fmt"
	"regexp"
	"strings"

	gcname "github.com/google/go-containerregistry/pkg/name"
	digest "github.com/opencontainers/go-digest"
)

// imageRefPattern transliterates jobq_server/models.py's
// validate_image_ref regex: an optional registry (with optional port),
// a required repo path, an optional tag, and an optional @sha256 digest.
var imageRefPattern = regexp.MustCompile(
	`^` +
		`(([a-zA-Z0-9]+([._-][a-zA-Z0-9]+)*)(:[0-9]+)?/)?` +
		`([a-zA-Z0-9]+([._-][a-zA-Z0-9]+)*(/[a-zA-Z0-9]+([._-][a-zA-Z0-9]+)*)*)` +
		`(:([a-zA-Z0-9]+([._-][a-zA-Z0-9]+)*))?` +
		`(@sha256:[a-f0-9]{64})?` +
		`$`,
)

// validateImageRef applies the documented grammar, then, where a digest
// component is present, a second opinion from opencontainers/go-digest,
// and finally, for every ref, google/go-containerregistry's own
// reference parser — the regex alone checks character classes and
// length but not that the digest is actually well-formed, nor that the
// whole ref is one go-containerregistry itself would accept.
func validateImageRef(ref string) error {
	if !imageRefPattern.MatchString(ref) {
		return fmt.Errorf("not a valid image ref: %q", ref)
	}

	if idx := strings.Index(ref, "@sha256:"); idx != -1 {
		d := digest.Digest(ref[idx+1:])
		if err := d.Validate(); err != nil {
			return fmt.Errorf("not a valid image ref: %q: %w", ref, err)
		}
	}

	if _, err := gcname.ParseReference(ref, gcname.WeakValidation); err != nil {
		return fmt.Errorf("not a valid image ref: %q: %w", ref, err)
	}

	return nil
}

// labelKeyPattern is spec.md §6's label key grammar.
var labelKeyPattern = regexp.MustCompile(`^[a-z]+(?:[/._-][a-z0-9]+)*[a-z]?$`)

func validateLabelKey(key string) error {
	if !labelKeyPattern.MatchString(key) {
		return fmt.Errorf("label key %q does not match the required grammar", key)
	}
	return nil
}

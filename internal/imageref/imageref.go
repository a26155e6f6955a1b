// Package imageref validates and probes container image references
// (the NameTag variant of containernet.Dockerfile) using
// go-containerregistry instead of hand-rolled string parsing.
package imageref

import (
	"context"

	"github.com/banksean/orchestra/orcherr"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Validate parses ref as a docker image reference, rejecting anything
// that is not a well-formed name[:tag] or name@digest.
func Validate(ref string) error {
	if _, err := name.ParseReference(ref); err != nil {
		return orcherr.Wrap(orcherr.KindParse, err, "invalid image reference "+ref)
	}
	return nil
}

// Exists reports whether ref resolves against its registry, without
// pulling any layers. Any registry error, an unreachable registry
// included, is reported as (false, nil); only a malformed ref returns
// an error.
func Exists(ctx context.Context, ref string) (bool, error) {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return false, orcherr.Wrap(orcherr.KindParse, err, "invalid image reference "+ref)
	}
	if _, err := remote.Head(parsed, remote.WithContext(ctx)); err != nil {
		return false, nil
	}
	return true, nil
}

// Digest resolves ref to its content digest, for callers that want to
// pin a build tag to an exact manifest.
func Digest(ctx context.Context, ref string) (string, error) {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindParse, err, "invalid image reference "+ref)
	}
	desc, err := remote.Get(parsed, remote.WithContext(ctx))
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindIO, err, "resolve digest for "+ref)
	}
	return desc.Digest.String(), nil
}

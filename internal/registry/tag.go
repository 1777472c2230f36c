package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/opencontainers/go-digest"
)

var schema1MediaTypes = []string{
	"application/vnd.docker.distribution.manifest.v1+prettyjws",
	"application/vnd.docker.distribution.manifest.v1+json",
	"application/json",
}

// Tag is a named or digest reference inside a repository. Its manifest is
// resolved once and kept for the lifetime of the instance.
type Tag struct {
	repository *Repository
	reference  string

	mu       sync.Mutex
	manifest *Manifest
}

func newTag(repository *Repository, reference string) *Tag {
	return &Tag{repository: repository, reference: reference}
}

func (t *Tag) Reference() string {
	return t.reference
}

func (t *Tag) Repository() *Repository {
	return t.repository
}

func (t *Tag) FullTag() string {
	return t.repository.FullTag(t.reference)
}

// Manifest resolves the tag's manifest. A successful result is memoized
// permanently; failures are not.
func (t *Tag) Manifest(ctx context.Context) (Manifest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.manifest != nil {
		return *t.manifest, nil
	}

	repo := t.repository
	resp, err := registryV2Request(ctx, repo.registry, v2Request{
		Method: http.MethodGet,
		Path:   repo.name + "/manifests/" + t.reference,
		Scope:  repo.pullScope(),
		Accept: schema1MediaTypes,
	})
	if err != nil {
		return Manifest{}, err
	}

	var body schema1Manifest
	if err := resp.Decode(&body); err != nil {
		return Manifest{}, fmt.Errorf("%w: %s: %w", ErrManifestUnreadable, t.FullTag(), err)
	}
	if len(body.History) == 0 || body.History[0].V1Compatibility == "" {
		return Manifest{}, fmt.Errorf("%w: %s has no v1 compatibility history", ErrManifestUnreadable, t.FullTag())
	}
	var compat v1Compatibility
	if err := json.Unmarshal([]byte(body.History[0].V1Compatibility), &compat); err != nil {
		return Manifest{}, fmt.Errorf("%w: %s: %w", ErrManifestUnreadable, t.FullTag(), err)
	}

	manifest := Manifest{
		Digest:  digest.Digest(resp.Headers["docker-content-digest"]),
		Created: compat.Created,
	}
	t.manifest = &manifest
	return manifest, nil
}

// Delete removes the manifest the tag points to.
func (t *Tag) Delete(ctx context.Context) error {
	manifest, err := t.Manifest(ctx)
	if err != nil {
		return err
	}
	if manifest.Digest == "" {
		return fmt.Errorf("%w: %s", ErrManifestNotFound, t.FullTag())
	}

	repo := t.repository
	_, err = registryV2Request(ctx, repo.registry, v2Request{
		Method: http.MethodDelete,
		Path:   repo.name + "/manifests/" + manifest.Digest.String(),
		Scope:  repo.deleteScope(),
	})
	if err != nil {
		return err
	}
	repo.registry.provider.logger.Info("Deleted tag", "tag", t.FullTag(), "digest", manifest.Digest)
	return nil
}

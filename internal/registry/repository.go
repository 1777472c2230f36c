package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/scottbass3/regscope/internal/cache"
)

type Repository struct {
	registry *Registry
	name     string
	tags     *cache.Collection[*Tag]
}

func newRepository(registry *Registry, name string) *Repository {
	r := &Repository{registry: registry, name: name}
	r.tags = cache.New(r.fetchTags)
	return r
}

func (r *Repository) Name() string {
	return r.name
}

func (r *Repository) Registry() *Registry {
	return r.registry
}

// Image is the repository's pull path without a reference.
func (r *Repository) Image() string {
	return r.registry.BaseImagePath() + "/" + r.name
}

// FullTag formats a pullable reference for reference in this repository.
func (r *Repository) FullTag(reference string) string {
	return r.Image() + ":" + reference
}

func (r *Repository) pullScope() string {
	return "repository:" + r.name + ":pull"
}

func (r *Repository) deleteScope() string {
	return "repository:" + r.name + ":*"
}

// Tags lists the repository's tags and resolves every tag's manifest before
// returning.
func (r *Repository) Tags(ctx context.Context, refresh bool) ([]*Tag, error) {
	return r.tags.Get(ctx, refresh)
}

func (r *Repository) Tag(ctx context.Context, reference string) (*Tag, error) {
	tags, err := r.Tags(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		if tag.Reference() == reference {
			return tag, nil
		}
	}
	return nil, fmt.Errorf("tag %q not found in %s", reference, r.name)
}

func (r *Repository) fetchTags(ctx context.Context) ([]*Tag, error) {
	var references []string
	next := r.name + "/tags/list"
	for pages := 0; next != "" && pages < maxPages; pages++ {
		resp, err := registryV2Request(ctx, r.registry, v2Request{
			Method: http.MethodGet,
			Path:   next,
			Scope:  r.pullScope(),
		})
		if err != nil {
			return nil, err
		}
		var page tagsPage
		if err := resp.Decode(&page); err != nil {
			return nil, err
		}
		references = append(references, page.Tags...)
		next = nextPagePath(resp.Headers["link"])
	}

	tags := make([]*Tag, 0, len(references))
	for _, reference := range references {
		tags = append(tags, newTag(r, reference))
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit := r.registry.provider.maxConcurrency; limit > 0 {
		g.SetLimit(limit)
	}
	for _, tag := range tags {
		g.Go(func() error {
			_, err := tag.Manifest(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.registry.provider.logger.Debug("Fetched tags", "registry", r.registry.id, "repository", r.name, "count", len(tags))
	return tags, nil
}

// Delete removes every tag of the repository. The V2 API has no repository
// endpoint, so a repository is gone once it has no tags left. Every tag is
// attempted; failures are returned together.
func (r *Repository) Delete(ctx context.Context) error {
	tags, err := r.Tags(ctx, true)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
		g      errgroup.Group
	)
	if limit := r.registry.provider.maxConcurrency; limit > 0 {
		g.SetLimit(limit)
	}
	for _, tag := range tags {
		g.Go(func() error {
			if err := tag.Delete(ctx); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("delete %s: %w", r.FullTag(tag.Reference()), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	r.tags.Reset()

	r.registry.provider.logger.Info("Deleted repository tags", "registry", r.registry.id, "repository", r.name, "count", len(tags))
	return result.ErrorOrNil()
}

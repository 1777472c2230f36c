package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/scottbass3/regscope/internal/cache"
	"github.com/scottbass3/regscope/internal/secrets"
)

const (
	catalogScope = "registry:catalog:*"
	maxPages     = 1000
)

// Registry is a connected V2 registry. Instances are rebuilt from persisted
// state whenever the provider cache is filled, so per-instance state such
// as the auth context does not survive a refresh.
type Registry struct {
	provider *Provider
	id       string

	mu          sync.Mutex
	state       State
	authContext *AuthContext

	// editMu is held across read, modify and save of the monolith list.
	editMu sync.Mutex

	repositories *cache.Collection[*Repository]
}

func newRegistry(provider *Provider, id string, state State) *Registry {
	r := &Registry{
		provider: provider,
		id:       id,
		state:    state,
	}
	r.repositories = cache.New(r.fetchRepositories)
	return r
}

func (r *Registry) ID() string {
	return r.id
}

func (r *Registry) Provider() *Provider {
	return r.provider
}

func (r *Registry) Service() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Service
}

func (r *Registry) Account() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Account
}

func (r *Registry) IsMonolith() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.MonolithRepositories != nil
}

// MonolithRepositories returns the persisted repository names, or nil when
// the registry uses catalog discovery.
func (r *Registry) MonolithRepositories() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.MonolithRepositories == nil {
		return nil
	}
	return append([]string{}, r.state.MonolithRepositories...)
}

// BaseURL is the API root requests are resolved against.
func (r *Registry) BaseURL() string {
	service := strings.TrimSuffix(r.Service(), "/")
	return strings.TrimSuffix(service, "/v2") + "/v2"
}

// BaseImagePath is the service address without scheme, /v2 suffix or
// trailing slash, lower-cased. It is a display and grouping key only.
func (r *Registry) BaseImagePath() string {
	path := r.Service()
	if idx := strings.Index(path, "://"); idx >= 0 {
		path = path[idx+3:]
	}
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, "/v2")
	path = strings.TrimSuffix(path, "/")
	return strings.ToLower(path)
}

func (r *Registry) Label() string {
	return r.BaseImagePath()
}

// AuthContext reports the challenge captured from a 401 response. Once set,
// every signed request uses a freshly exchanged bearer token.
func (r *Registry) AuthContext() (AuthContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.authContext == nil {
		return AuthContext{}, false
	}
	return *r.authContext, true
}

func (r *Registry) setAuthContext(authCtx AuthContext) {
	r.mu.Lock()
	r.authContext = &authCtx
	r.mu.Unlock()
	r.provider.logger.Debug("Registry switched to bearer auth", "registry", r.id, "realm", authCtx.Realm, "service", authCtx.Service)
}

// Repositories lists the registry's repositories. Non-refresh calls return
// the cached objects once filled.
func (r *Registry) Repositories(ctx context.Context, refresh bool) ([]*Repository, error) {
	return r.repositories.Get(ctx, refresh)
}

// Repository returns the cached repository with the given name.
func (r *Registry) Repository(ctx context.Context, name string) (*Repository, error) {
	repos, err := r.Repositories(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, repo := range repos {
		if repo.Name() == name {
			return repo, nil
		}
	}
	return nil, fmt.Errorf("repository %q not found in %s", name, r.Label())
}

func (r *Registry) fetchRepositories(ctx context.Context) ([]*Repository, error) {
	if names := r.MonolithRepositories(); names != nil {
		return r.wrapRepositories(names), nil
	}

	_, wasUpgraded := r.AuthContext()
	in := v2Request{Method: http.MethodGet, Path: "_catalog", Scope: catalogScope, AllowFailure: true}
	resp, err := registryV2Request(ctx, r, in)
	if err != nil {
		return nil, err
	}
	// With challenge retries on, registryV2Request already re-sent the
	// request after upgrading, so a second 401 is final.
	_, upgraded := r.AuthContext()
	retried := r.provider.retryChallenges && !wasUpgraded && upgraded
	if resp.Status == http.StatusUnauthorized && !retried {
		if authCtx, ok := getAuthContext(resp); ok {
			r.setAuthContext(authCtx)
		}
		in.AllowFailure = false
		resp, err = registryV2Request(ctx, r, in)
		if err != nil {
			return nil, err
		}
	}

	var page catalogPage
	if !resp.Succeeded {
		_ = resp.Decode(&page)
		return nil, &CatalogFetchFailedError{
			Status:     resp.Status,
			StatusText: resp.StatusText,
			Errors:     page.Errors,
		}
	}
	if err := resp.Decode(&page); err != nil {
		return nil, err
	}
	names := page.Repositories

	next := nextPagePath(resp.Headers["link"])
	for pages := 1; next != "" && pages < maxPages; pages++ {
		resp, err = registryV2Request(ctx, r, v2Request{Method: http.MethodGet, Path: next, Scope: catalogScope})
		if err != nil {
			return nil, err
		}
		page = catalogPage{}
		if err := resp.Decode(&page); err != nil {
			return nil, err
		}
		names = append(names, page.Repositories...)
		next = nextPagePath(resp.Headers["link"])
	}

	r.provider.logger.Debug("Fetched catalog", "registry", r.id, "count", len(names))
	return r.wrapRepositories(names), nil
}

func (r *Registry) wrapRepositories(names []string) []*Repository {
	repos := make([]*Repository, 0, len(names))
	for _, name := range names {
		repos = append(repos, newRepository(r, name))
	}
	return repos
}

// ConnectMonolithRepository adds name to the persisted repository list of a
// monolith registry.
func (r *Registry) ConnectMonolithRepository(name string) error {
	name = normalizeRepositoryName(name)
	if name == "" {
		return errors.New("repository name is required")
	}

	r.editMu.Lock()
	defer r.editMu.Unlock()

	r.mu.Lock()
	if r.state.MonolithRepositories == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s does not use monolith repositories", ErrInvalidMode, r.id)
	}
	for _, existing := range r.state.MonolithRepositories {
		if strings.EqualFold(existing, name) {
			r.mu.Unlock()
			return nil
		}
	}
	updated := r.state
	updated.MonolithRepositories = append(append([]string{}, r.state.MonolithRepositories...), name)
	r.mu.Unlock()

	return r.saveState(updated)
}

// DisconnectMonolithRepository removes name, matched case-insensitively,
// from the persisted repository list of a monolith registry.
func (r *Registry) DisconnectMonolithRepository(name string) error {
	name = normalizeRepositoryName(name)

	r.editMu.Lock()
	defer r.editMu.Unlock()

	r.mu.Lock()
	if r.state.MonolithRepositories == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s does not use monolith repositories", ErrInvalidMode, r.id)
	}
	kept := make([]string, 0, len(r.state.MonolithRepositories))
	for _, existing := range r.state.MonolithRepositories {
		if strings.EqualFold(existing, name) {
			continue
		}
		kept = append(kept, existing)
	}
	updated := r.state
	updated.MonolithRepositories = kept
	r.mu.Unlock()

	return r.saveState(updated)
}

func (r *Registry) saveState(state State) error {
	if err := r.provider.saveState(r.id, state); err != nil {
		return err
	}
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	r.repositories.Reset()
	return nil
}

// sign attaches the Authorization header for scope.
func (r *Registry) sign(ctx context.Context, req *http.Request, scope string) error {
	authCtx, upgraded := r.AuthContext()
	if !upgraded {
		return r.signBasic(ctx, req)
	}
	token, err := r.exchangeToken(ctx, authCtx, scope)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (r *Registry) signBasic(ctx context.Context, req *http.Request) error {
	r.mu.Lock()
	service, account := r.state.Service, r.state.Account
	r.mu.Unlock()
	if account == "" {
		return nil
	}

	secret, err := r.provider.secrets.Get(ctx, service, account)
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return fmt.Errorf("load secret for %s: %w", r.id, err)
	}
	req.SetBasicAuth(account, secret)
	return nil
}

func normalizeRepositoryName(name string) string {
	return strings.Trim(strings.TrimSpace(name), "/")
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/scottbass3/regscope/internal/cache"
	"github.com/scottbass3/regscope/internal/kv"
	"github.com/scottbass3/regscope/internal/secrets"
)

const DefaultProviderID = "registryV2"

type Options struct {
	// ProviderID prefixes every persisted key.
	ProviderID string
	State      kv.Store
	Secrets    secrets.Store

	HTTPClient    *http.Client
	Logger        *log.Logger
	RequestLogger RequestLogger

	// MaxConcurrency bounds manifest prefetch and tag deletion fan-out.
	// Zero means unbounded.
	MaxConcurrency int

	// RetryChallenges upgrades to bearer auth and retries once on any 401,
	// not only on catalog requests.
	RetryChallenges bool
}

// ConnectOptions describes a registry to connect. A non-nil
// MonolithRepositories skips catalog discovery for the registry.
type ConnectOptions struct {
	Service              string
	Account              string
	Secret               string
	MonolithRepositories []string
}

// Provider owns the set of connected registries. The ordered list of
// registry IDs is persisted; Registry objects are rebuilt from it.
type Provider struct {
	id              string
	state           kv.Store
	secrets         secrets.Store
	httpClient      *http.Client
	logger          *log.Logger
	requestLogger   RequestLogger
	maxConcurrency  int
	retryChallenges bool

	// idsMu serializes read-modify-write of the persisted ID list.
	idsMu      sync.Mutex
	registries *cache.Collection[*Registry]
}

func NewProvider(opts Options) (*Provider, error) {
	if opts.State == nil {
		return nil, errors.New("state store is required")
	}
	if opts.Secrets == nil {
		return nil, errors.New("secret store is required")
	}
	id := strings.TrimSpace(opts.ProviderID)
	if id == "" {
		id = DefaultProviderID
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 15 * time.Second,
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	p := &Provider{
		id:              id,
		state:           opts.State,
		secrets:         opts.Secrets,
		httpClient:      httpClient,
		logger:          logger,
		requestLogger:   opts.RequestLogger,
		maxConcurrency:  opts.MaxConcurrency,
		retryChallenges: opts.RetryChallenges,
	}
	p.registries = cache.New(p.fetchRegistries)
	return p, nil
}

func (p *Provider) ID() string {
	return p.id
}

// Registries returns the connected registries. refresh discards the cached
// objects and rebuilds them from persisted state.
func (p *Provider) Registries(ctx context.Context, refresh bool) ([]*Registry, error) {
	return p.registries.Get(ctx, refresh)
}

// Registry returns the cached registry with the given ID.
func (p *Provider) Registry(ctx context.Context, id string) (*Registry, error) {
	registries, err := p.Registries(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, r := range registries {
		if r.id == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRegistry, id)
}

func (p *Provider) fetchRegistries(context.Context) ([]*Registry, error) {
	ids, err := p.registryIDs()
	if err != nil {
		return nil, err
	}
	registries := make([]*Registry, 0, len(ids))
	for _, id := range ids {
		var state State
		ok, err := kv.GetJSON(p.state, p.stateKey(id), &state)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.logger.Warn("Skipping registry without persisted state", "registry", id)
			continue
		}
		registries = append(registries, newRegistry(p, id, state))
	}
	return registries, nil
}

// ConnectRegistry persists a new registry and its secret and returns it.
func (p *Provider) ConnectRegistry(ctx context.Context, opts ConnectOptions) (*Registry, error) {
	state, err := normalizeConnectOptions(opts)
	if err != nil {
		return nil, err
	}

	id := newRegistryID()
	if state.Account != "" && opts.Secret != "" {
		if err := p.secrets.Set(ctx, state.Service, state.Account, opts.Secret); err != nil {
			return nil, fmt.Errorf("store secret: %w", err)
		}
	}
	if err := p.saveState(id, state); err != nil {
		p.removeSecret(ctx, state)
		return nil, err
	}

	p.idsMu.Lock()
	err = p.updateRegistryIDs(func(ids []string) []string {
		return append(ids, id)
	})
	p.idsMu.Unlock()
	if err != nil {
		_ = p.state.Delete(p.stateKey(id))
		p.removeSecret(ctx, state)
		return nil, err
	}

	r := newRegistry(p, id, state)
	p.registries.Append(r)
	p.logger.Info("Connected registry", "registry", id, "service", state.Service, "monolith", state.MonolithRepositories != nil)
	return r, nil
}

// DisconnectRegistry removes the registry's ID, persisted state and secret.
func (p *Provider) DisconnectRegistry(ctx context.Context, r *Registry) error {
	if r == nil || r.provider != p {
		return ErrForeignRegistry
	}

	p.idsMu.Lock()
	err := p.updateRegistryIDs(func(ids []string) []string {
		return slices.DeleteFunc(ids, func(id string) bool { return id == r.id })
	})
	p.idsMu.Unlock()
	if err != nil {
		return err
	}

	var result *multierror.Error
	if err := p.state.Delete(p.stateKey(r.id)); err != nil {
		result = multierror.Append(result, fmt.Errorf("delete state: %w", err))
	}
	if account := r.Account(); account != "" {
		if err := p.secrets.Delete(ctx, r.Service(), account); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete secret: %w", err))
		}
	}
	p.registries.Remove(func(cached *Registry) bool { return cached.id == r.id })

	p.logger.Info("Disconnected registry", "registry", r.id, "service", r.Service())
	return result.ErrorOrNil()
}

func (p *Provider) registriesKey() string {
	return p.id + ".registries"
}

func (p *Provider) stateKey(registryID string) string {
	return p.id + "." + registryID + ".state"
}

func (p *Provider) registryIDs() ([]string, error) {
	var ids []string
	if _, err := kv.GetJSON(p.state, p.registriesKey(), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (p *Provider) updateRegistryIDs(update func([]string) []string) error {
	ids, err := p.registryIDs()
	if err != nil {
		return err
	}
	ids = update(ids)
	if ids == nil {
		ids = []string{}
	}
	return kv.SetJSON(p.state, p.registriesKey(), ids)
}

func (p *Provider) saveState(registryID string, state State) error {
	if err := kv.SetJSON(p.state, p.stateKey(registryID), state); err != nil {
		return fmt.Errorf("save registry state: %w", err)
	}
	return nil
}

func (p *Provider) removeSecret(ctx context.Context, state State) {
	if state.Account == "" {
		return
	}
	if err := p.secrets.Delete(ctx, state.Service, state.Account); err != nil {
		p.logger.Warn("Failed to roll back secret", "service", state.Service, "error", err)
	}
}

func normalizeConnectOptions(opts ConnectOptions) (State, error) {
	service := strings.TrimSpace(opts.Service)
	if service == "" {
		return State{}, errors.New("registry service URL is required")
	}
	if !strings.Contains(service, "://") {
		service = "https://" + service
	}
	parsed, err := url.Parse(service)
	if err != nil {
		return State{}, fmt.Errorf("invalid registry service URL: %w", err)
	}
	if parsed.Host == "" {
		return State{}, errors.New("registry service URL must include a host name")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	state := State{
		Service: parsed.String(),
		Account: strings.TrimSpace(opts.Account),
	}
	if opts.MonolithRepositories != nil {
		state.MonolithRepositories = make([]string, 0, len(opts.MonolithRepositories))
		for _, name := range opts.MonolithRepositories {
			name = normalizeRepositoryName(name)
			if name == "" || slices.ContainsFunc(state.MonolithRepositories, func(existing string) bool {
				return strings.EqualFold(existing, name)
			}) {
				continue
			}
			state.MonolithRepositories = append(state.MonolithRepositories, name)
		}
	}
	return state, nil
}

// newRegistryID returns a random 32 character alphanumeric identifier.
func newRegistryID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

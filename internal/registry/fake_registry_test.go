package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scottbass3/regscope/internal/kv"
	"github.com/scottbass3/regscope/internal/secrets"
)

type fakeImage struct {
	digest  string
	created string
}

type recordedRequest struct {
	Method        string
	Path          string
	Authorization string
}

type tokenRequest struct {
	Authorization string
	Form          url.Values
}

// fakeRegistry serves the subset of the V2 API the client uses. In bearer
// mode every /v2 request without a token issued by /token gets a 401
// challenge.
type fakeRegistry struct {
	server *httptest.Server

	mu            sync.Mutex
	repos         map[string]map[string]fakeImage
	bearer        bool
	catalogStatus int
	pageSize      int
	issued        map[string]bool
	requests      []recordedRequest
	tokenRequests []tokenRequest
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{
		repos:  map[string]map[string]fakeImage{},
		issued: map[string]bool{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRegistry) addImage(repo, tag, digest, created string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repos[repo] == nil {
		f.repos[repo] = map[string]fakeImage{}
	}
	f.repos[repo][tag] = fakeImage{digest: digest, created: created}
}

func (f *fakeRegistry) requireBearer() {
	f.mu.Lock()
	f.bearer = true
	f.mu.Unlock()
}

func (f *fakeRegistry) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest{}, f.requests...)
}

func (f *fakeRegistry) tokens() []tokenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tokenRequest{}, f.tokenRequests...)
}

func (f *fakeRegistry) countPath(method, path string) int {
	count := 0
	for _, req := range f.recorded() {
		if req.Method == method && req.Path == path {
			count++
		}
	}
	return count
}

func (f *fakeRegistry) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/token" {
		f.serveToken(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
	})

	if f.bearer && !f.issued[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")] {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s/token",service="fake-registry"`, f.server.URL))
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"errors": []map[string]string{{"code": "UNAUTHORIZED", "message": "authentication required"}},
		})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v2/")
	switch {
	case path == "_catalog":
		f.serveCatalog(w, r)
	case strings.HasSuffix(path, "/tags/list"):
		f.serveTags(w, strings.TrimSuffix(path, "/tags/list"))
	case strings.Contains(path, "/manifests/"):
		idx := strings.LastIndex(path, "/manifests/")
		f.serveManifest(w, r, path[:idx], path[idx+len("/manifests/"):])
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeRegistry) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, _, ok := r.BasicAuth(); r.Method != http.MethodPost || !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{})
		return
	}

	f.mu.Lock()
	f.tokenRequests = append(f.tokenRequests, tokenRequest{
		Authorization: r.Header.Get("Authorization"),
		Form:          r.PostForm,
	})
	token := fmt.Sprintf("tok-%d", len(f.tokenRequests))
	f.issued[token] = true
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (f *fakeRegistry) serveCatalog(w http.ResponseWriter, r *http.Request) {
	if f.catalogStatus != 0 {
		writeJSON(w, f.catalogStatus, map[string]any{
			"errors": []map[string]string{{"code": "DENIED", "message": "catalog disabled"}},
		})
		return
	}
	names := make([]string, 0, len(f.repos))
	for name := range f.repos {
		names = append(names, name)
	}
	sort.Strings(names)

	if f.pageSize > 0 {
		last := r.URL.Query().Get("last")
		start := 0
		if last != "" {
			start = sort.SearchStrings(names, last) + 1
		}
		end := start + f.pageSize
		if end < len(names) {
			w.Header().Set("Link", fmt.Sprintf(`</v2/_catalog?last=%s&n=%d>; rel="next"`, names[end-1], f.pageSize))
		} else {
			end = len(names)
		}
		names = names[start:end]
	}
	writeJSON(w, http.StatusOK, map[string]any{"repositories": names})
}

func (f *fakeRegistry) serveTags(w http.ResponseWriter, repo string) {
	images, ok := f.repos[repo]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"errors": []map[string]string{{"code": "NAME_UNKNOWN", "message": "repository name not known"}},
		})
		return
	}
	tags := make([]string, 0, len(images))
	for tag := range images {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	writeJSON(w, http.StatusOK, map[string]any{"name": repo, "tags": tags})
}

func (f *fakeRegistry) serveManifest(w http.ResponseWriter, r *http.Request, repo, reference string) {
	images := f.repos[repo]
	switch r.Method {
	case http.MethodGet:
		image, ok := images[reference]
		if !ok {
			for _, candidate := range images {
				if candidate.digest == reference {
					image, ok = candidate, true
					break
				}
			}
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{})
			return
		}
		compat, _ := json.Marshal(map[string]string{"created": image.created})
		w.Header().Set("Docker-Content-Digest", image.digest)
		writeJSON(w, http.StatusOK, map[string]any{
			"schemaVersion": 1,
			"name":          repo,
			"tag":           reference,
			"history":       []map[string]string{{"v1Compatibility": string(compat)}},
		})
	case http.MethodDelete:
		found := false
		for tag, image := range images {
			if image.digest == reference {
				delete(images, tag)
				found = true
			}
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]any{})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func newStubServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

type testEnv struct {
	provider *Provider
	state    *kv.MemoryStore
	secrets  *secrets.MemoryStore
}

func newTestEnv(t *testing.T, configure ...func(*Options)) testEnv {
	t.Helper()
	env := testEnv{
		state:   kv.NewMemoryStore(),
		secrets: secrets.NewMemoryStore(),
	}
	opts := Options{
		ProviderID: "test",
		State:      env.state,
		Secrets:    env.secrets,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	provider, err := NewProvider(opts)
	require.NoError(t, err)
	env.provider = provider
	return env
}

package registry

import (
	"encoding/json"
	"time"

	"github.com/opencontainers/go-digest"
)

// State is the persisted, non-secret configuration of a connected registry.
// A nil MonolithRepositories means the registry is discovered through its
// catalog; any non-nil list (even empty) puts it in monolith mode.
type State struct {
	Service              string   `json:"service"`
	Account              string   `json:"account"`
	MonolithRepositories []string `json:"monolithRepositories"`
}

// MarshalJSON omits monolithRepositories for catalog registries and keeps an
// empty list as [] so the mode survives a round trip.
func (s State) MarshalJSON() ([]byte, error) {
	out := struct {
		Service              string    `json:"service"`
		Account              string    `json:"account"`
		MonolithRepositories *[]string `json:"monolithRepositories,omitempty"`
	}{Service: s.Service, Account: s.Account}
	if s.MonolithRepositories != nil {
		out.MonolithRepositories = &s.MonolithRepositories
	}
	return json.Marshal(out)
}

type Manifest struct {
	Digest  digest.Digest
	Created string
}

// CreatedAt parses Created, returning the zero time when it is missing or
// malformed.
func (m Manifest) CreatedAt() time.Time {
	return parseDockerTime(m.Created)
}

func parseDockerTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed
	}
	if parsed, err := time.Parse(time.DateOnly, value); err == nil {
		return parsed
	}
	return time.Time{}
}

type schema1Manifest struct {
	History []struct {
		V1Compatibility string `json:"v1Compatibility"`
	} `json:"history"`
}

type v1Compatibility struct {
	Created string `json:"created"`
}

type catalogPage struct {
	Repositories []string   `json:"repositories"`
	Errors       []APIError `json:"errors"`
}

type tagsPage struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// AuthContext is the realm/service pair taken from a 401 challenge.
type AuthContext struct {
	Realm   string
	Service string
}

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

var (
	realmPattern   = regexp.MustCompile(`realm="([^"]+)"`)
	servicePattern = regexp.MustCompile(`service="([^"]+)"`)
)

// getAuthContext parses the WWW-Authenticate challenge of a 401 response.
func getAuthContext(resp *Response) (AuthContext, bool) {
	if resp == nil || resp.Status != http.StatusUnauthorized {
		return AuthContext{}, false
	}
	challenge := resp.Headers["www-authenticate"]
	if challenge == "" {
		return AuthContext{}, false
	}
	realm := realmPattern.FindStringSubmatch(challenge)
	service := servicePattern.FindStringSubmatch(challenge)
	if len(realm) < 2 || len(service) < 2 {
		return AuthContext{}, false
	}
	return AuthContext{Realm: realm[1], Service: service[1]}, true
}

// exchangeToken trades the registry's Basic credentials for a bearer token
// valid for scope.
func (r *Registry) exchangeToken(ctx context.Context, authCtx AuthContext, scope string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("service", authCtx.Service)
	form.Set("scope", scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authCtx.Realm, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("invalid token realm: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if err := r.signBasic(ctx, req); err != nil {
		return "", err
	}

	resp, err := roundTrip(ctx, r.provider.httpClient, r.provider.requestLogger, req)
	if err != nil {
		return "", err
	}
	if !resp.Succeeded {
		return "", &OAuthExchangeFailedError{
			Realm:      authCtx.Realm,
			Status:     resp.Status,
			StatusText: resp.StatusText,
		}
	}

	token, err := decodeTokenResponse(resp)
	if err != nil {
		return "", err
	}
	return token, nil
}

func decodeTokenResponse(resp *Response) (string, error) {
	var payload tokenResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("%w: %w", ErrOAuthExchangeFailed, err)
	}
	token := firstNonEmptyToken(payload.Token, payload.AccessToken)
	if token == "" {
		return "", fmt.Errorf("%w: token response missing token", ErrOAuthExchangeFailed)
	}
	return token, nil
}

func firstNonEmptyToken(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

package registry

import (
	"net/http"
	"net/url"
	"strings"
)

const redacted = "<redacted>"

// cloneHeader copies header for logging, hiding credentials.
func cloneHeader(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}
	out := make(map[string][]string, len(header))
	for key, values := range header {
		if strings.EqualFold(key, "Authorization") {
			out[key] = []string{redacted}
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		out[key] = copied
	}
	return out
}

func lowerHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(key)] = values[0]
	}
	return out
}

// resolveURL joins the registry API base and a path relative to it.
func resolveURL(base, p string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "/")
}

// nextPagePath extracts the rel="next" target of a Link header as a path
// relative to the /v2 API root.
func nextPagePath(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	start := strings.Index(link, "<")
	end := strings.Index(link, ">")
	if start < 0 || end <= start {
		return ""
	}
	if !strings.Contains(strings.ReplaceAll(link[end:], " ", ""), `rel="next"`) {
		return ""
	}
	parsed, err := url.Parse(link[start+1 : end])
	if err != nil {
		return ""
	}
	p := parsed.Path
	if idx := strings.Index(p, "/v2/"); idx >= 0 {
		p = p[idx+len("/v2/"):]
	} else {
		p = strings.TrimPrefix(p, "/")
	}
	if p == "" {
		return ""
	}
	if parsed.RawQuery != "" {
		p += "?" + parsed.RawQuery
	}
	return p
}

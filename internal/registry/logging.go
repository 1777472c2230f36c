package registry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

type RequestLog struct {
	Method  string
	URL     string
	Headers map[string][]string
	Status  int
}

// String renders the exchange on one line, headers sorted by name.
func (l RequestLog) String() string {
	var b strings.Builder
	b.WriteString(l.Method)
	b.WriteString(" ")
	b.WriteString(l.URL)
	if l.Status > 0 {
		b.WriteString(" -> ")
		b.WriteString(fmt.Sprintf("%d", l.Status))
	}
	if len(l.Headers) == 0 {
		return b.String()
	}

	b.WriteString(" | ")
	keys := make([]string, 0, len(l.Headers))
	for key := range l.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(strings.Join(l.Headers[key], ","))
	}
	return b.String()
}

type RequestLogger func(RequestLog)

// LogRequests returns a RequestLogger that writes every exchange to logger
// at debug level.
func LogRequests(logger *log.Logger) RequestLogger {
	return func(entry RequestLog) {
		logger.Debug("Registry request", "request", entry.String())
	}
}

func logRequestWithLogger(logger RequestLogger, req *http.Request, resp *http.Response) {
	if logger == nil {
		return
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	logger(RequestLog{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: cloneHeader(req.Header),
		Status:  status,
	})
}

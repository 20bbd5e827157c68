package collyfetcher

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const robotsCacheTTL = time.Hour

// robotsCacheTransport memoizes robots.txt responses per host so repeated
// visits to an author's site do not refetch the file on every page.
type robotsCacheTransport struct {
	base http.RoundTripper

	mu    sync.Mutex
	cache map[string]cachedRobots
}

type cachedRobots struct {
	statusCode int
	body       []byte
	fetchedAt  time.Time
}

func newRobotsCacheTransport(base http.RoundTripper) *robotsCacheTransport {
	return &robotsCacheTransport{
		base:  base,
		cache: make(map[string]cachedRobots),
	}
}

func (t *robotsCacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !isRobotsTxtRequest(req) {
		return t.base.RoundTrip(req)
	}
	host := req.URL.Host

	t.mu.Lock()
	entry, ok := t.cache[host]
	t.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < robotsCacheTTL {
		return entry.response(req), nil
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	entry = cachedRobots{statusCode: resp.StatusCode, body: body, fetchedAt: time.Now()}
	t.mu.Lock()
	t.cache[host] = entry
	t.mu.Unlock()

	return entry.response(req), nil
}

func (c cachedRobots) response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    c.statusCode,
		Status:        http.StatusText(c.statusCode),
		Body:          io.NopCloser(bytes.NewReader(c.body)),
		ContentLength: int64(len(c.body)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/urlnorm"
)

func TestFetcherFetchesPage(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/page"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html><body>hello</body></html>", string(resp.Body))
	require.True(t, resp.IsHTML())
	require.Equal(t, DefaultUserAgent, <-agents)

	// A second fetch of the same URL must not be rejected as already visited.
	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/page"})
	require.NoError(t, err)
}

func TestFetcherNon2xxIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(Config{UserAgent: "test-agent"}).Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.Error(t, err)
}

func TestFetcherHonorsRequestTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(context.Background(), crawler.FetchRequest{
		URL:     srv.URL,
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestFetcherRedirectScope(t *testing.T) {
	t.Parallel()

	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>elsewhere</body></html>"))
	}))
	defer external.Close()

	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved":
			http.Redirect(w, r, "/target", http.StatusFound)
		case "/away":
			http.Redirect(w, r, external.URL+"/", http.StatusFound)
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>target</body></html>"))
		}
	}))
	defer internal.Close()

	f := New(Config{})
	domain := urlnorm.Host(internal.URL)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: internal.URL + "/moved", AllowedDomain: domain})
	require.NoError(t, err)
	require.Equal(t, "<html><body>target</body></html>", string(resp.Body))

	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: internal.URL + "/away", AllowedDomain: domain})
	require.ErrorIs(t, err, ErrOffDomainRedirect)

	// Unrestricted fetches follow the redirect off the domain.
	resp, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: internal.URL + "/away"})
	require.NoError(t, err)
	require.Equal(t, "<html><body>elsewhere</body></html>", string(resp.Body))
}

func TestCheckRedirect(t *testing.T) {
	t.Parallel()

	scoped := context.WithValue(context.Background(), allowedDomainKey{}, "guide.example.com")
	newReq := func(ctx context.Context, target string) *http.Request {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		require.NoError(t, err)
		return req
	}

	require.NoError(t, checkRedirect(newReq(scoped, "https://guide.example.com/b"), nil))
	require.NoError(t, checkRedirect(newReq(scoped, "https://docs.guide.example.com/"), nil))
	require.ErrorIs(t, checkRedirect(newReq(scoped, "https://evil.example.net/"), nil), ErrOffDomainRedirect)
	require.NoError(t, checkRedirect(newReq(context.Background(), "https://evil.example.net/"), nil))

	via := make([]*http.Request, maxRedirects)
	require.EqualError(t, checkRedirect(newReq(scoped, "https://guide.example.com/c"), via), "stopped after 10 redirects")
}

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})
	ctx := context.Background()
	collector := f.buildCollector(ctx, crawler.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0),
		&crawler.FetchResponse{}, new(error))
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.AllowURLRevisit)
	require.Equal(t, ctx, collector.Context)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/html"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "text/html", result.ContentType())
	require.NoError(t, fetchErr)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	require.EqualError(t, fetchErr, "status 502: Bad Gateway")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

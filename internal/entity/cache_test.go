package entity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitecrawler/internal/markup"
)

func TestCacheBundledDTDNeedsNoFetch(t *testing.T) {
	t.Parallel()

	fetcher := FetcherFunc(func(context.Context, string) ([]byte, error) {
		t.Fatal("bundled dtd must not be fetched")
		return nil, nil
	})
	c := NewCache(fetcher)

	data, err := c.Resolve(context.Background(), markup.XHTMLTransitionalPublicID, "xhtml1-transitional.dtd")
	require.NoError(t, err)
	require.Contains(t, string(data), `<!ENTITY nbsp "&#160;">`)

	bySystem, err := c.Resolve(context.Background(), "", markup.XHTMLTransitionalSystemID)
	require.NoError(t, err)
	require.Equal(t, data, bySystem)
	require.Zero(t, c.Stats().Fetches)
}

func TestCacheFetchesAtMostOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	fetcher := FetcherFunc(func(_ context.Context, systemID string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("<!ENTITY x \"y\"> " + systemID), nil
	})
	c := NewCache(fetcher)

	const callers = 16
	results := make([][]byte, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := c.Resolve(context.Background(), "-//EXAMPLE//DTD Test//EN", "http://example.com/test.dtd")
			require.NoError(t, err)
			results[i] = data
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.Equal(t, results[0], r)
	}

	again, err := c.Resolve(context.Background(), "-//EXAMPLE//DTD Test//EN", "http://other/ignored.dtd")
	require.NoError(t, err)
	require.Equal(t, results[0], again)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, 1, c.Stats().Fetches)
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fetcher := FetcherFunc(func(context.Context, string) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("boom")
		}
		return []byte("ok"), nil
	})
	c := NewCache(fetcher, WithoutBundled())

	_, err := c.Resolve(context.Background(), "id", "http://example.com/a.dtd")
	require.Error(t, err)
	data, err := c.Resolve(context.Background(), "id", "http://example.com/a.dtd")
	require.NoError(t, err)
	require.Equal(t, "ok", string(data))
}

func TestCacheRewritesLocalSystemID(t *testing.T) {
	t.Parallel()

	var got string
	fetcher := FetcherFunc(func(_ context.Context, systemID string) ([]byte, error) {
		got = systemID
		return []byte("x"), nil
	})
	c := NewCache(fetcher)

	_, err := c.Resolve(context.Background(), "-//W3C//ENTITIES Latin 1 for XHTML//EN", "file:///home/crawler/xhtml-lat1.ent")
	require.NoError(t, err)
	require.Equal(t, CanonicalDTDBase+"xhtml-lat1.ent", got)
}

func TestCacheRequiresIdentifier(t *testing.T) {
	t.Parallel()

	_, err := NewCache(nil).Resolve(context.Background(), "", "")
	require.ErrorIs(t, err, ErrNoIdentifier)
}

func TestCanonicalSystemID(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                                  "",
		"http://example.com/x.dtd":          "http://example.com/x.dtd",
		"xhtml-symbol.ent":                  CanonicalDTDBase + "xhtml-symbol.ent",
		"file:///tmp/run/xhtml-special.ent": CanonicalDTDBase + "xhtml-special.ent",
		"./dtd/xhtml1-strict.dtd":           CanonicalDTDBase + "xhtml1-strict.dtd",
	}
	for in, want := range tests {
		require.Equal(t, want, CanonicalSystemID(in), in)
	}
}

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.dtd" {
			http.NotFound(w, r)
			return
		}
		require.Equal(t, "sitecrawler-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`<!ENTITY a "b">`))
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPFetcher(srv.Client(), "sitecrawler-test", 0)
	data, err := f.Fetch(context.Background(), srv.URL+"/ok.dtd")
	require.NoError(t, err)
	require.Equal(t, `<!ENTITY a "b">`, string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.dtd")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "404"), err.Error())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewHTTPFetcher(nil, "", time.Second).Fetch(ctx, srv.URL+"/ok.dtd")
	require.ErrorIs(t, err, context.Canceled)
}

func TestCacheServesXMLParser(t *testing.T) {
	t.Parallel()

	doc := `<!DOCTYPE html PUBLIC "` + markup.XHTMLTransitionalPublicID + `" "` + markup.XHTMLTransitionalSystemID + `">
<html><body><a href="/x" title="&eacute;&hellip;">x</a></body></html>`
	var title string
	err := markup.NewXMLParser(NewCache(nil)).Parse(context.Background(), strings.NewReader(doc), func(name string, attrs []markup.Attr) {
		if name == "a" {
			title, _ = markup.Lookup(attrs, "title")
		}
	})
	require.NoError(t, err)
	require.Equal(t, "é…", title)
}

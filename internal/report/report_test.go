package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/storage/memory"
)

func sampleResults() map[string]*crawler.Result {
	discovered := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	page := crawler.NewResult("http://h/b", crawler.Referrer{ReferrerURL: "http://h/", Href: "b"}, discovered)
	page.Status = 200
	page.Text = "hello world"
	page.Elapsed = 250 * time.Millisecond

	broken := crawler.NewResult("http://h/a", crawler.Referrer{ReferrerURL: "http://h/", Href: "a"}, discovered)
	broken.Status = 404
	broken.Error = "404 Not Found"
	broken.ErrorKind = crawler.KindProtocol

	seed := crawler.NewResult("http://h/", crawler.Referrer{}, discovered)
	seed.Status = 200
	seed.Raw = []byte("hello world")
	return map[string]*crawler.Result{page.URL: page, broken.URL: broken, seed.URL: seed}
}

func TestBuildSortsAndDigests(t *testing.T) {
	t.Parallel()

	rep := Build(Meta{RunID: "run-1", Host: "http://h/"}, sampleResults(), crawler.Counters{Dispatched: 3, Retrieved: 3})

	require.Len(t, rep.Results, 3)
	require.Equal(t, "http://h/", rep.Results[0].URL)
	require.Equal(t, "http://h/a", rep.Results[1].URL)
	require.Equal(t, "http://h/b", rep.Results[2].URL)
	require.Equal(t, 1, rep.Failures)

	const digest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	require.Equal(t, digest, rep.Results[0].SHA256)
	require.Equal(t, digest, rep.Results[2].SHA256)
	require.Empty(t, rep.Results[1].SHA256)
	require.Equal(t, int64(250), rep.Results[2].ElapsedMillis)
	require.Empty(t, rep.Results[0].Referrers)
	require.NotNil(t, rep.Results[0].Referrers)
}

func TestWriterStoresJSON(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w := NewWriter(store, "run-1.json", nil)
	rep := Build(Meta{RunID: "run-1", Finished: true}, sampleResults(), crawler.Counters{Dispatched: 3, Retrieved: 3})

	uri, err := w.Write(context.Background(), rep)
	require.NoError(t, err)
	require.Equal(t, "memory://run-1.json", uri)

	data, ok := store.Get("run-1.json")
	require.True(t, ok)
	var decoded struct {
		RunID    string           `json:"run_id"`
		Finished bool             `json:"finished"`
		Counters crawler.Counters `json:"counters"`
		Results  []struct {
			URL       string             `json:"url"`
			Referrers []crawler.Referrer `json:"referrers"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "run-1", decoded.RunID)
	require.True(t, decoded.Finished)
	require.Equal(t, 3, decoded.Counters.Retrieved)
	require.Len(t, decoded.Results, 3)
	require.Equal(t, []crawler.Referrer{{ReferrerURL: "http://h/", Href: "a"}}, decoded.Results[1].Referrers)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	args := m.Called(ctx, path, contentType, r)
	return args.String(0), args.Error(1)
}

func TestWriterWrapsStoreErrors(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	store.On("PutObject", mock.Anything, "r.json", "application/json", mock.Anything).Return("", errors.New("denied"))

	_, err := NewWriter(store, "r.json", nil).Write(context.Background(), Build(Meta{}, nil, crawler.Counters{}))
	require.ErrorContains(t, err, "store report: denied")
	store.AssertExpectations(t)
}

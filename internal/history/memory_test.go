package history

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func ref(page, href string) crawler.Referrer {
	return crawler.Referrer{ReferrerURL: page, Href: href}
}

func TestMemoryClaimSingleWinner(t *testing.T) {
	t.Parallel()

	h := NewMemory(nil)
	const claimants = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range claimants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.Claim("http://h/a", ref(fmt.Sprintf("http://h/p%d", i), "a")) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, 1, h.Len())
	require.Empty(t, h.Snapshot(), "pending claims are not visible")

	res := crawler.NewResult("http://h/a", crawler.Referrer{}, h.now())
	res.Status = 200
	h.Finalize(res)

	snap := h.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, claimants, snap["http://h/a"].Referrers.Len())
}

func TestMemoryReferrersAfterFinalizeLandOnResult(t *testing.T) {
	t.Parallel()

	h := NewMemory(nil)
	require.True(t, h.Claim("http://h/a", ref("http://h/", "a")))
	res := crawler.NewResult("http://h/a", ref("http://h/", "a"), h.now())
	h.Finalize(res)

	require.False(t, h.Claim("http://h/a", ref("http://h/b", "../a")))
	require.True(t, res.Referrers.Contains(ref("http://h/b", "../a")))
	require.Same(t, res, h.Snapshot()["http://h/a"])
}

func TestMemoryFinalizeAnomaliesAreLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	h := NewMemory(zap.New(core))

	h.Finalize(crawler.NewResult("http://h/never", crawler.Referrer{}, h.now()))
	require.Equal(t, 1, logs.FilterMessage("finalize for unclaimed url").Len())

	require.True(t, h.Claim("http://h/twice", crawler.Referrer{}))
	first := crawler.NewResult("http://h/twice", crawler.Referrer{}, h.now())
	h.Finalize(first)
	h.Finalize(crawler.NewResult("http://h/twice", ref("http://h/", "twice"), h.now()))
	require.Equal(t, 1, logs.FilterMessage("unexpected report for finalized url").Len())
	require.Same(t, first, h.Snapshot()["http://h/twice"])
	require.True(t, first.Referrers.Contains(ref("http://h/", "twice")))
}

func TestMemoryRelease(t *testing.T) {
	t.Parallel()

	h := NewMemory(nil)
	require.True(t, h.Claim("http://h/a", crawler.Referrer{}))
	h.Release("http://h/a")
	require.Zero(t, h.Len())
	require.True(t, h.Claim("http://h/a", crawler.Referrer{}))

	h.Finalize(crawler.NewResult("http://h/a", crawler.Referrer{}, h.now()))
	h.Release("http://h/a")
	require.Equal(t, 1, h.Len(), "finalized entries survive release")
}

func TestMemoryFinalizeKeepsDiscoveryTime(t *testing.T) {
	t.Parallel()

	h := NewMemory(nil)
	require.True(t, h.Claim("http://h/a", crawler.Referrer{}))
	h.Finalize(&crawler.Result{URL: "http://h/a"})

	got := h.Snapshot()["http://h/a"]
	require.False(t, got.DiscoveredAt.IsZero())
	require.NotNil(t, got.Referrers)
}

func TestPassthrough(t *testing.T) {
	t.Parallel()

	var h Passthrough
	require.True(t, h.Claim("http://h/a", crawler.Referrer{}))
	require.True(t, h.Claim("http://h/a", crawler.Referrer{}))
	h.Finalize(crawler.NewResult("http://h/a", crawler.Referrer{}, time.Now()))
	h.Release("http://h/a")
	require.Empty(t, h.Snapshot())
}

package sinks

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/progress"
)

func TestPubSubObserverPublishesEvents(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "crawl-results")
	require.NoError(t, err)

	o := NewPubSubObserver(topic, "run-1", nil)
	res := &crawler.Result{URL: "http://h/missing", Status: 404}
	o.Notify(progress.Event{Kind: progress.KindResult, Result: res, Counters: crawler.Counters{Dispatched: 1, Retrieved: 1}})
	o.Notify(progress.Event{Kind: progress.KindFinished, Counters: crawler.Counters{Dispatched: 1, Retrieved: 1}})
	require.NoError(t, o.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 2)

	byKind := map[string]Notification{}
	for _, m := range msgs {
		require.Equal(t, "run-1", m.Attributes["run_id"])
		var n Notification
		require.NoError(t, json.Unmarshal(m.Data, &n))
		byKind[m.Attributes["kind"]] = n
	}
	require.Equal(t, Notification{
		RunID:      "run-1",
		Kind:       progress.KindResult,
		URL:        "http://h/missing",
		Status:     404,
		Dispatched: 1,
		Retrieved:  1,
	}, byKind["result"])
	require.Equal(t, progress.KindFinished, byKind["finished"].Kind)
	require.Empty(t, byKind["finished"].URL)
}

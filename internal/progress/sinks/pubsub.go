package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// Notification is the message body published for every event.
type Notification struct {
	RunID         string            `json:"run_id"`
	Kind          progress.Kind     `json:"kind"`
	URL           string            `json:"url,omitempty"`
	Status        int               `json:"status,omitempty"`
	ErrorKind     crawler.ErrorKind `json:"error_kind,omitempty"`
	ElapsedMillis int64             `json:"elapsed_ms,omitempty"`
	Dispatched    int               `json:"dispatched"`
	Retrieved     int               `json:"retrieved"`
}

// PubSubObserver publishes a compact notification per event to a Pub/Sub topic. Publishing
// is asynchronous; Close flushes it and reports failed sends.
type PubSubObserver struct {
	topic  *pubsub.Topic
	runID  string
	logger *zap.Logger

	wg     sync.WaitGroup
	failed atomic.Int64
}

// NewPubSubObserver publishes to topic, stamping every message with runID.
func NewPubSubObserver(topic *pubsub.Topic, runID string, logger *zap.Logger) *PubSubObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubObserver{topic: topic, runID: runID, logger: logger}
}

// Notify implements progress.Observer.
func (o *PubSubObserver) Notify(evt progress.Event) {
	n := Notification{
		RunID:      o.runID,
		Kind:       evt.Kind,
		Dispatched: evt.Counters.Dispatched,
		Retrieved:  evt.Counters.Retrieved,
	}
	if res := evt.Result; res != nil {
		n.URL = res.URL
		n.Status = res.Status
		n.ErrorKind = res.ErrorKind
		n.ElapsedMillis = res.ElapsedMillis()
	}
	data, err := json.Marshal(n)
	if err != nil {
		o.failed.Add(1)
		o.logger.Error("marshal notification", zap.Error(err))
		return
	}

	ctx := context.Background()
	result := o.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": string(evt.Kind), "run_id": o.runID},
	})
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := result.Get(ctx); err != nil {
			o.failed.Add(1)
			o.logger.Warn("publish notification failed", zap.String("url", n.URL), zap.Error(err))
		}
	}()
}

// Close flushes pending messages and stops the topic's publisher.
func (o *PubSubObserver) Close() error {
	o.topic.Stop()
	o.wg.Wait()
	if n := o.failed.Load(); n > 0 {
		return fmt.Errorf("%d notifications were not published", n)
	}
	return nil
}

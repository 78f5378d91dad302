package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/service/quota"
)

type fakeProducer struct {
	mu       sync.Mutex
	records  []*kgo.Record
	ctxErrs  []error
	err      error
	flushErr error
	closed   bool
}

func (f *fakeProducer) Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.mu.Lock()
	f.records = append(f.records, r)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	err := f.err
	f.mu.Unlock()
	if promise != nil {
		promise(r, err)
	}
}

func (f *fakeProducer) Flush(context.Context) error { return f.flushErr }

func (f *fakeProducer) Close() { f.closed = true }

func sampleAlert() quota.Alert {
	return quota.Alert{
		Level:      quota.LevelCritical,
		Used:       441,
		Limit:      490,
		Percentage: 90,
		Date:       "2026-05-01",
		At:         time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestPublishQuotaAlert_BuildsRecord(t *testing.T) {
	t.Parallel()
	fp := &fakeProducer{}
	p := &AlertPublisher{client: fp, topic: "alerts"}

	ctx, cancel := context.WithCancel(observability.ContextWithRequestID(context.Background(), "req-1"))
	cancel()
	require.NoError(t, p.PublishQuotaAlert(ctx, sampleAlert()))

	require.Len(t, fp.records, 1)
	rec := fp.records[0]
	assert.Equal(t, "alerts", rec.Topic)
	assert.Equal(t, "2026-05-01", string(rec.Key))
	assert.NoError(t, fp.ctxErrs[0], "produce context is detached from caller cancellation")

	var got quota.Alert
	require.NoError(t, json.Unmarshal(rec.Value, &got))
	assert.Equal(t, sampleAlert(), got)

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{"level": "critical", "event": "quota_alert", "request_id": "req-1"}, headers)
}

func TestPublishQuotaAlert_DeliveryFailureIsNotReturned(t *testing.T) {
	t.Parallel()
	fp := &fakeProducer{err: errors.New("broker down")}
	p := &AlertPublisher{client: fp, topic: DefaultTopic}

	assert.NoError(t, p.PublishQuotaAlert(context.Background(), sampleAlert()))
	assert.Len(t, fp.records, 1)
}

func TestClose_FlushesAndCloses(t *testing.T) {
	t.Parallel()
	fp := &fakeProducer{flushErr: context.DeadlineExceeded}
	p := &AlertPublisher{client: fp, topic: DefaultTopic}

	err := p.Close(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, fp.closed)
}

func TestNewAlertPublisher_RequiresBrokers(t *testing.T) {
	t.Parallel()
	_, err := NewAlertPublisher(context.Background(), nil, "")
	require.Error(t, err)
}

func TestEnsureTopic_ValidatesInput(t *testing.T) {
	t.Parallel()
	client, err := kgo.NewClient(kgo.SeedBrokers("localhost:19092"))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	assert.Error(t, ensureTopic(ctx, client, "", 1, 1))
	assert.Error(t, ensureTopic(ctx, client, "t", 0, 1))
	assert.Error(t, ensureTopic(ctx, client, "t", 1, 0))
}

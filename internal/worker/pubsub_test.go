package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/alert"
	"github.com/lifelink/lifelink/internal/worker"
)

type recordingDispatcher struct {
	mu      sync.Mutex
	runs    []*alert.DispatchMessage
	err     error
	release chan struct{}
}

func (d *recordingDispatcher) Run(ctx context.Context, msg *alert.DispatchMessage) (*worker.DispatchResult, error) {
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs = append(d.runs, msg)
	return &worker.DispatchResult{AlertID: msg.AlertID}, d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.runs)
}

func TestRouter_Handle(t *testing.T) {
	d := &recordingDispatcher{}
	router := worker.NewRouter(d, zerolog.Nop())
	ctx := context.Background()

	err := router.Handle(ctx, []byte(`{"type":"emergency_dispatch","dispatch":{"alertId":"alt_1","userId":"usr_1"}}`))
	require.NoError(t, err)
	require.Equal(t, 1, d.count())
	assert.Equal(t, "alt_1", d.runs[0].AlertID)

	assert.NoError(t, router.Handle(ctx, []byte(`{"type":"health_check"}`)))
	assert.NoError(t, router.Handle(ctx, []byte(`{"type":"provider_refresh"}`)))
	assert.Equal(t, 1, d.count())

	assert.ErrorIs(t, router.Handle(ctx, []byte(`not json`)), worker.ErrMalformedMessage)
	assert.ErrorIs(t, router.Handle(ctx, []byte(`{"type":"emergency_dispatch"}`)), worker.ErrMalformedMessage)

	d.err = errors.New("contacts unavailable")
	assert.EqualError(t, router.Handle(ctx, []byte(`{"type":"emergency_dispatch","dispatch":{"alertId":"alt_2"}}`)), "contacts unavailable")
}

func TestInlinePublisher(t *testing.T) {
	d := &recordingDispatcher{}
	pub := worker.NewInlinePublisher(d, zerolog.Nop())

	require.NoError(t, pub.Publish(context.Background(), &alert.DispatchMessage{AlertID: "alt_1"}))
	require.NoError(t, pub.Publish(context.Background(), &alert.DispatchMessage{AlertID: "alt_2"}))

	pub.Close(context.Background())
	assert.Equal(t, 2, d.count())

	assert.Error(t, pub.Publish(context.Background(), &alert.DispatchMessage{AlertID: "alt_3"}))
}

func TestInlinePublisher_CloseCancelsAfterDeadline(t *testing.T) {
	d := &recordingDispatcher{release: make(chan struct{})}
	pub := worker.NewInlinePublisher(d, zerolog.Nop())
	require.NoError(t, pub.Publish(context.Background(), &alert.DispatchMessage{AlertID: "alt_1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	pub.Close(ctx)

	assert.Equal(t, 0, d.count())
}

func TestLogCallCenter(t *testing.T) {
	cc := worker.NewLogCallCenter(zerolog.Nop())
	assert.NoError(t, cc.Notify(context.Background(), dispatchMessage()))
}

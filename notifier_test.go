package filerelay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSNotifierPublishesPerState(t *testing.T) {
	pub := &fakePublisher{}
	notifier := &NATSNotifier{conn: pub, subject: "filerelay.transfers"}

	err := notifier.Notify(context.Background(), TransferEvent{
		ID:    "t-1",
		Name:  "movie.mp4",
		State: StateLinkGenerated,
		URL:   "https://example.com/x",
	})
	require.NoError(t, err)

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "filerelay.transfers.link_generated", pub.subjects[0])

	var ev TransferEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &ev))
	assert.Equal(t, "t-1", ev.ID)
	assert.Equal(t, "https://example.com/x", ev.URL)
}

func TestNATSNotifierErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	notifier := &NATSNotifier{conn: pub, subject: "x"}

	err := notifier.Notify(context.Background(), TransferEvent{State: StateFailed})
	assert.ErrorContains(t, err, "connection closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, notifier.Notify(ctx, TransferEvent{}), context.Canceled)
}

func TestAsyncNotifierLogsFailures(t *testing.T) {
	logger := &mockLogger{}
	called := make(chan TransferEvent, 1)

	notifier := NewAsyncNotifier(NotifierFunc(func(ctx context.Context, ev TransferEvent) error {
		called <- ev
		return errors.New("subscriber down")
	}), logger)

	require.NoError(t, notifier.Notify(context.Background(), TransferEvent{ID: "t-1", State: StateReceived}))

	select {
	case ev := <-called:
		assert.Equal(t, "t-1", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("expected the wrapped notifier to be called")
	}

	assert.Eventually(t, func() bool { return len(logger.errors()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAsyncNotifierWithoutTarget(t *testing.T) {
	notifier := NewAsyncNotifier(nil, nil)
	defer notifier.Close()

	assert.NoError(t, notifier.Notify(context.Background(), TransferEvent{}))
}

func TestAsyncNotifierKeepsTransitionOrder(t *testing.T) {
	var (
		mu     sync.Mutex
		states []TransferState
	)

	notifier := NewAsyncNotifier(NotifierFunc(func(ctx context.Context, ev TransferEvent) error {
		// later events must not overtake a slow delivery
		if ev.State == StateReceived {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		states = append(states, ev.State)
		mu.Unlock()
		return nil
	}), &mockLogger{})

	want := []TransferState{
		StateReceived,
		StateDownloading,
		StateDownloaded,
		StateUploading,
		StateUploaded,
		StateLinkGenerated,
		StateCleaned,
	}
	for _, state := range want {
		require.NoError(t, notifier.Notify(context.Background(), TransferEvent{ID: "t-1", State: state}))
	}

	notifier.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, states)
}

func TestAsyncNotifierClosed(t *testing.T) {
	notifier := NewAsyncNotifier(NotifierFunc(func(ctx context.Context, ev TransferEvent) error {
		return nil
	}), &mockLogger{})
	notifier.Close()
	notifier.Close()

	err := notifier.Notify(context.Background(), TransferEvent{ID: "t-1"})
	assert.ErrorIs(t, err, ErrNotifierClosed)
}

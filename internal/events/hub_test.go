package events_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHub_DeliversToTopicOnly(t *testing.T) {
	hub := events.NewHub(4, zap.NewNop())
	alice, bob := uuid.New(), uuid.New()

	aliceCh, unsubA := hub.Subscribe(alice)
	defer unsubA()
	bobCh, unsubB := hub.Subscribe(bob)
	defer unsubB()

	hub.Publish(events.Event{Type: events.TypeApprovalCreated, UserID: alice})

	select {
	case ev := <-aliceCh:
		assert.Equal(t, events.TypeApprovalCreated, ev.Type)
		assert.False(t, ev.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}

	select {
	case <-bobCh:
		t.Fatal("bob must not receive alice's event")
	default:
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := events.NewHub(1, zap.NewNop())
	user := uuid.New()
	ch, unsub := hub.Subscribe(user)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(events.Event{Type: events.TypeStageChanged, UserID: user})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Len(t, ch, 1)
}

func TestHub_UnsubscribeClosesOnce(t *testing.T) {
	hub := events.NewHub(1, zap.NewNop())
	user := uuid.New()
	ch, unsub := hub.Subscribe(user)
	require.Equal(t, 1, hub.SubscriberCount(user))

	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount(user))

	hub.Publish(events.Event{UserID: user})
}

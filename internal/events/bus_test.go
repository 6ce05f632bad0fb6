package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBus(nil)

	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(Event{Type: TypeSyncStart})

	select {
	case ev := <-ch1:
		assert.Equal(t, TypeSyncStart, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive event")
	}

	select {
	case ev := <-ch2:
		assert.Equal(t, TypeSyncStart, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(nil)

	ch, unsub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	unsub()
	require.Equal(t, 0, b.SubscriberCount())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	b := NewBus(nil)

	_, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: TypeSyncStats})
	}

	assert.Equal(t, int64(10), b.dropped[0])
}

package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSub_FansOutToTopicSubscribers(t *testing.T) {
	ps := NewPubSub[int]()
	a := ps.Subscribe("nums", 4)
	b := ps.Subscribe("nums", 4)
	other := ps.Subscribe("other", 4)

	ps.Publish("nums", 7)

	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-b)
	select {
	case v := <-other:
		t.Fatalf("unexpected value on other topic: %v", v)
	default:
	}
}

func TestPubSub_LatestWinsAtCapacityOne(t *testing.T) {
	ps := NewPubSub[string]()
	ch := ps.Subscribe("state", 1)

	ps.Publish("state", "first")
	ps.Publish("state", "second")
	ps.Publish("state", "third")

	// slow consumer wakes up to the newest value only
	assert.Equal(t, "third", <-ch)
	assert.Equal(t, uint64(2), ps.Dropped())
}

func TestPubSub_EvictsOldestWhenBufferFull(t *testing.T) {
	ps := NewPubSub[int]()
	ch := ps.Subscribe("nums", 3)

	for i := 1; i <= 5; i++ {
		ps.Publish("nums", i)
	}

	assert.Equal(t, 3, <-ch)
	assert.Equal(t, 4, <-ch)
	assert.Equal(t, 5, <-ch)
	assert.Equal(t, uint64(2), ps.Dropped())
}

func TestPubSub_PublishWithoutSubscribersIsHarmless(t *testing.T) {
	ps := NewPubSub[int]()
	ps.Publish("void", 1)
	assert.Equal(t, uint64(0), ps.Dropped())
}

func TestPubSub_UnsubscribeClosesChannel(t *testing.T) {
	ps := NewPubSub[int]()
	ch := ps.Subscribe("nums", 1)
	ps.Unsubscribe("nums", ch)

	_, open := <-ch
	assert.False(t, open)

	// publishing after removal reaches nobody
	ps.Publish("nums", 9)
	assert.Equal(t, uint64(0), ps.Dropped())
}

func TestPubSub_CloseClosesEverySubscriber(t *testing.T) {
	ps := NewPubSub[int]()
	a := ps.Subscribe("x", 1)
	b := ps.Subscribe("y", 1)
	ps.Close()

	_, openA := <-a
	_, openB := <-b
	require.False(t, openA)
	require.False(t, openB)
}

func TestPubSub_MinimumCapacityIsOne(t *testing.T) {
	ps := NewPubSub[int]()
	ch := ps.Subscribe("nums", 0)
	ps.Publish("nums", 42)
	assert.Equal(t, 42, <-ch)
}

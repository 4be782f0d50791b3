package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_SubscribeReceive(t *testing.T) {
	f := NewFeed()
	id, ch := f.Subscribe()
	require.NotEmpty(t, id)
	assert.Equal(t, 1, f.Subscribers())

	f.ProfileApplied(Update{ID: "u1"})
	u := <-ch
	assert.Equal(t, "u1", u.ID)

	f.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open, "unsubscribe closes the channel")
	assert.Zero(t, f.Subscribers())

	// Unknown IDs are ignored.
	f.Unsubscribe("missing")
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	f := NewFeed()
	_, ch := f.Subscribe()

	for i := 0; i < feedBuffer*3; i++ {
		f.ProfileApplied(Update{})
	}
	assert.Len(t, ch, feedBuffer)
}

func TestFeed_Close(t *testing.T) {
	f := NewFeed()
	_, a := f.Subscribe()
	_, b := f.Subscribe()

	f.Close()
	f.ProfileApplied(Update{})

	for _, ch := range []<-chan Update{a, b} {
		_, open := <-ch
		assert.False(t, open)
	}

	_, late := f.Subscribe()
	_, open := <-late
	assert.False(t, open, "subscribing after close yields a closed channel")
}

package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/notify/entity"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("n-%d", n)
	}
}

func TestPushIsNewestFirst(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	c := NewCenter(func() time.Time { return now }, sequentialIDs())

	first := c.Push(entity.Entry{Title: "first"})
	second := c.Push(entity.Entry{Title: "second", Type: entity.TypeWarning, Read: true})

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, entity.TypeInfo, list[1].Type)
	assert.False(t, list[0].Read, "pushed entries start unread")
	assert.Equal(t, now, list[0].Timestamp)
	assert.Equal(t, 2, c.UnreadCount())
}

func TestMarkReadIsIdempotent(t *testing.T) {
	c := NewCenter(nil, sequentialIDs())
	a := c.Push(entity.Entry{Title: "a"})
	c.Push(entity.Entry{Title: "b"})

	require.NoError(t, c.MarkRead(a.ID))
	once := c.UnreadCount()
	require.NoError(t, c.MarkRead(a.ID))
	assert.Equal(t, once, c.UnreadCount())
	assert.Equal(t, 1, c.UnreadCount())

	require.ErrorIs(t, c.MarkRead("missing"), ErrNotFound)
}

func TestMarkAllReadAndClear(t *testing.T) {
	c := NewCenter(nil, nil)
	c.Push(entity.Entry{Title: "a"})
	c.Push(entity.Entry{Title: "b"})
	c.MarkAllRead()
	assert.Equal(t, 0, c.UnreadCount())

	c.Clear()
	assert.Empty(t, c.List())
}

func TestListReturnsCopy(t *testing.T) {
	c := NewCenter(nil, nil)
	c.Push(entity.Entry{Title: "a"})
	list := c.List()
	list[0].Read = true
	assert.Equal(t, 1, c.UnreadCount())
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGetExpire(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", "alice")
	c.SetWithTTL("b", "bob", 10*time.Second)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	now = now.Add(30 * time.Second)
	_, ok = c.Get("b")
	assert.False(t, ok, "b should have expired")
	_, ok = c.Get("a")
	assert.True(t, ok)

	assert.Equal(t, 1, c.Evict())
	assert.Equal(t, 1, c.Size())
}

func TestCache_NonPositiveTTLIgnored(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.SetWithTTL("x", 1, 0)
	c.SetWithTTL("y", 1, -time.Second)
	assert.Equal(t, 0, c.Size())
}

func TestCache_Delete(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_StopTwice(t *testing.T) {
	c := NewCache(0)
	c.Stop()
	c.Stop()
}

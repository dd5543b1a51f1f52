package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelforge/fulfillment/internal/cache"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemory_RoundTrip(t *testing.T) {
	c := cache.NewMemory("test", time.Minute)
	c.SetJSON("key", payload{Name: "widget", Count: 3}, time.Minute)

	var out payload
	require.True(t, c.GetJSON("key", &out))
	assert.Equal(t, "widget", out.Name)
	assert.Equal(t, 3, out.Count)
}

func TestMemory_MissReturnsFalse(t *testing.T) {
	c := cache.NewMemory("test", time.Minute)
	var out payload
	assert.False(t, c.GetJSON("absent", &out))
}

func TestMemory_Expiry(t *testing.T) {
	c := cache.NewMemory("test", time.Minute)
	c.SetJSON("key", payload{Name: "short-lived"}, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	var out payload
	assert.False(t, c.GetJSON("key", &out))
}

func TestMemory_NamespacesIsolate(t *testing.T) {
	a := cache.NewMemory("a", time.Minute)
	b := cache.NewMemory("b", time.Minute)
	a.SetJSON("key", payload{Name: "a"}, time.Minute)

	var out payload
	assert.False(t, b.GetJSON("key", &out))
}

func TestMemory_DeletePrefix(t *testing.T) {
	c := cache.NewMemory("test", time.Minute)
	c.SetJSON("rates:order-1", payload{Name: "one"}, time.Minute)
	c.SetJSON("rates:order-2", payload{Name: "two"}, time.Minute)
	c.SetJSON("labels:order-1", payload{Name: "keep"}, time.Minute)

	c.DeletePrefix("rates:")

	var out payload
	assert.False(t, c.GetJSON("rates:order-1", &out))
	assert.False(t, c.GetJSON("rates:order-2", &out))
	assert.True(t, c.GetJSON("labels:order-1", &out))
}

func TestNop_AlwaysMisses(t *testing.T) {
	var c cache.Cache = cache.Nop{}
	c.SetJSON("key", payload{Name: "ignored"}, time.Minute)

	var out payload
	assert.False(t, c.GetJSON("key", &out))
}

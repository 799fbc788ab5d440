package rendercache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := New(Config{Dir: dir, MaxBytes: 1 << 20, TTL: 24 * time.Hour}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	key := Key("doc1", "v1", 0, 150, nil)

	got, err := c.Get(key)
	require.NoError(t, err)
	require.Nil(t, got)

	payload := []byte("fake png bytes")
	require.NoError(t, c.Put(key, "v1", payload))

	got, err = c.Get(key)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestInvalidate_RemovesPrefixedEntries(t *testing.T) {
	c := newTestCache(t)
	key := Key("doc1", "v1", 0, 150, nil)
	require.NoError(t, c.Put(key, "v1", []byte("bytes")))

	require.NoError(t, c.Invalidate("doc1"))

	got, err := c.Get(key)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestEnsureSpace_EvictsLRU(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Config{Dir: dir, MaxBytes: 10, TTL: 24 * time.Hour}, nil)
	require.NoError(t, err)
	defer c.Close()

	k1 := Key("doc1", "v1", 0, 150, nil)
	k2 := Key("doc2", "v1", 0, 150, nil)

	require.NoError(t, c.Put(k1, "v1", []byte("12345")))
	time.Sleep(time.Millisecond) // last_access_at is whole seconds, so this alone does not order k1 before k2
	require.NoError(t, c.Put(k2, "v1", []byte("67890")))

	// Budget of 10 bytes with two 5-byte entries is exactly at capacity;
	// a third put must evict the oldest (k1).
	k3 := Key("doc3", "v1", 0, 150, nil)
	require.NoError(t, c.Put(k3, "v1", []byte("abcde")))

	got, err := c.Get(k1)
	require.NoError(t, err)
	require.Nil(t, got, "oldest entry should have been evicted")
}

func TestBBoxKey_IncludedWhenPresent(t *testing.T) {
	bbox := [4]float64{0.1, 0.2, 0.9, 0.95}
	key := Key("doc1", "v1", 0, 300, &bbox)
	require.Contains(t, key, "0.1000")
}

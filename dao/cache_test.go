package dao

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cachePayload = json.RawMessage(`{"answer":"42"}`)

func TestCacheSetAndGet(t *testing.T) {
	setupTestDB(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	setClock(t0)

	require.NoError(t, SetCachedResponse("q1", cachePayload, time.Hour))

	setClock(t0.Add(10 * time.Second))
	entry, err := GetCachedResponse("q1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"42"}`, string(entry.Payload))
	assert.Equal(t, int64(1), entry.HitCount)

	entry, err = GetCachedResponse("q1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.HitCount)
}

func TestCacheLazyExpiry(t *testing.T) {
	setupTestDB(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	setClock(t0)

	require.NoError(t, SetCachedResponse("q1", cachePayload, time.Hour))

	setClock(t0.Add(10 * time.Second))
	_, err := GetCachedResponse("q1")
	require.NoError(t, err)

	// 过期后即使行仍存在也按miss处理，hit_count不再增长
	setClock(t0.Add(3601 * time.Second))
	_, err = GetCachedResponse("q1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	raw, err := CacheEntryByKey("q1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), raw.HitCount)

	evicted, err := SweepResponseCache(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), evicted)

	_, err = CacheEntryByKey("q1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheGetMissingKey(t *testing.T) {
	setupTestDB(t)
	_, err := GetCachedResponse("nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheOverwriteResetsEntry(t *testing.T) {
	setupTestDB(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	setClock(t0)

	require.NoError(t, SetCachedResponse("q1", cachePayload, time.Minute))
	_, err := GetCachedResponse("q1")
	require.NoError(t, err)

	// 调用方决定刷新：覆盖未过期的键是允许的，hit_count归零，TTL重新计算
	setClock(t0.Add(30 * time.Second))
	require.NoError(t, SetCachedResponse("q1", json.RawMessage(`{"answer":"43"}`), time.Minute))

	setClock(t0.Add(80 * time.Second))
	entry, err := GetCachedResponse("q1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"43"}`, string(entry.Payload))
	assert.Equal(t, int64(1), entry.HitCount)
}

func TestCacheSweepSizeBound(t *testing.T) {
	setupTestDB(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		setClock(t0.Add(time.Duration(i) * time.Second))
		require.NoError(t, SetCachedResponse(fmt.Sprintf("q%d", i), cachePayload, time.Hour))
	}

	setClock(t0.Add(10 * time.Second))
	evicted, err := SweepResponseCache(3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), evicted)

	// 最老的两条被淘汰
	_, err = CacheEntryByKey("q0")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = CacheEntryByKey("q1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = CacheEntryByKey("q4")
	assert.NoError(t, err)
}

func TestCacheValidation(t *testing.T) {
	setupTestDB(t)

	var valErr *ValidationError
	err := SetCachedResponse("", cachePayload, time.Hour)
	assert.ErrorAs(t, err, &valErr)

	err = SetCachedResponse("q1", cachePayload, 0)
	assert.ErrorAs(t, err, &valErr)

	_, err = GetCachedResponse("")
	assert.ErrorAs(t, err, &valErr)
}

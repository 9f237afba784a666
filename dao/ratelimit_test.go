package dao

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrincipal = "discord:556677"

func TestRateLimitWithinWindow(t *testing.T) {
	setupTestDB(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		setClock(t0.Add(time.Duration(i*2) * time.Second))
		res, err := CheckAndIncrementRateLimit(testPrincipal, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 4-i, res.Remaining)
	}

	// 第6个请求被拒绝，计数保持在limit不再增长
	setClock(t0.Add(11 * time.Second))
	res, err := CheckAndIncrementRateLimit(testPrincipal, 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	st, err := GetRateLimitState(testPrincipal)
	require.NoError(t, err)
	assert.Equal(t, 5, st.RequestCount)
	assert.Equal(t, int64(5), st.TotalRequests)
	assert.Equal(t, t0.Add(11*time.Second).Unix(), st.LastRequestAt.Unix())
}

func TestRateLimitWindowRollover(t *testing.T) {
	setupTestDB(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	setClock(t0)

	for i := 0; i < 5; i++ {
		_, err := CheckAndIncrementRateLimit(testPrincipal, 5, time.Minute)
		require.NoError(t, err)
	}

	setClock(t0.Add(61 * time.Second))
	res, err := CheckAndIncrementRateLimit(testPrincipal, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)

	st, err := GetRateLimitState(testPrincipal)
	require.NoError(t, err)
	assert.Equal(t, 1, st.RequestCount)
	assert.Equal(t, t0.Add(61*time.Second).Unix(), st.WindowStart.Unix())
	assert.Equal(t, int64(6), st.TotalRequests)
}

func TestRateLimitPerPrincipalIsolation(t *testing.T) {
	setupTestDB(t)
	setClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	res, err := CheckAndIncrementRateLimit("discord:1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = CheckAndIncrementRateLimit("discord:1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// 其他principal不受影响
	res, err = CheckAndIncrementRateLimit("discord:2", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestResetRateLimitIfExpired(t *testing.T) {
	setupTestDB(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	setClock(t0)

	// 无状态时无事可做
	reset, err := ResetRateLimitIfExpired(testPrincipal)
	require.NoError(t, err)
	assert.False(t, reset)

	_, err = CheckAndIncrementRateLimit(testPrincipal, 5, time.Minute)
	require.NoError(t, err)

	setClock(t0.Add(30 * time.Second))
	reset, err = ResetRateLimitIfExpired(testPrincipal)
	require.NoError(t, err)
	assert.False(t, reset)

	setClock(t0.Add(61 * time.Second))
	reset, err = ResetRateLimitIfExpired(testPrincipal)
	require.NoError(t, err)
	assert.True(t, reset)

	st, err := GetRateLimitState(testPrincipal)
	require.NoError(t, err)
	assert.Equal(t, 0, st.RequestCount)
	// 历史总数不随窗口清零
	assert.Equal(t, int64(1), st.TotalRequests)
}

func TestRateLimitValidation(t *testing.T) {
	setupTestDB(t)

	var valErr *ValidationError
	_, err := CheckAndIncrementRateLimit("", 5, time.Minute)
	assert.ErrorAs(t, err, &valErr)

	_, err = CheckAndIncrementRateLimit(testPrincipal, 0, time.Minute)
	assert.ErrorAs(t, err, &valErr)

	_, err = CheckAndIncrementRateLimit(testPrincipal, 5, 0)
	assert.ErrorAs(t, err, &valErr)
}

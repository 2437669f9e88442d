package quota

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gateway/multiapi/model"
)

func TestAllowRejectsExhaustedQuota(t *testing.T) {
	l := New()
	key := &model.TenantKey{Id: 1, RemainQuota: 0}

	err := l.Allow(key, 10)
	require.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestAllowPermitsUnlimitedQuotaWithNoRemainQuota(t *testing.T) {
	l := New()
	key := &model.TenantKey{Id: 2, UnlimitedQuota: true}

	err := l.Allow(key, 10)
	require.NoError(t, err)
}

func TestAllowRateLimitsBurstOverRequestsPerMinute(t *testing.T) {
	l := New()
	key := &model.TenantKey{Id: 3, RemainQuota: 1000, RequestsPerMinute: 1, TokensPerMinute: 1_000_000}

	require.NoError(t, l.Allow(key, 1))
	err := l.Allow(key, 1)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestAllowRejectsOverHourlyWindowWithRetryAfter(t *testing.T) {
	l := New()
	key := &model.TenantKey{Id: 4, RemainQuota: 1000, RequestsPerMinute: 1000, TokensPerMinute: 1_000_000, RequestsPerHour: 1}

	require.NoError(t, l.Allow(key, 1))
	err := l.Allow(key, 1)

	var qe *QuotaExceeded
	require.True(t, errors.As(err, &qe))
	require.Equal(t, "hour", qe.Window)
	require.Greater(t, qe.RetryAfter.Seconds(), float64(0))
}

func TestAllowRejectsOverDailyCostCap(t *testing.T) {
	l := New()
	key := &model.TenantKey{Id: 5, RemainQuota: 1000, RequestsPerMinute: 1000, TokensPerMinute: 1_000_000, DailyCostCap: 50}

	require.NoError(t, l.Allow(key, 1))
	l.RecordTenantCost(key.Id, 50)
	err := l.Allow(key, 1)

	var qe *QuotaExceeded
	require.True(t, errors.As(err, &qe))
	require.Equal(t, "cost", qe.Window)
}

func TestAllowKeyRejectsOverMinuteWindow(t *testing.T) {
	l := New()
	key := &model.UpstreamKey{Id: 10, RequestsPerMinute: 1}

	require.NoError(t, l.AllowKey(key))
	err := l.AllowKey(key)

	var qe *QuotaExceeded
	require.True(t, errors.As(err, &qe))
	require.Equal(t, "minute", qe.Window)
}

func TestAllowKeyUnboundedByDefault(t *testing.T) {
	l := New()
	key := &model.UpstreamKey{Id: 11}

	for i := 0; i < 5; i++ {
		require.NoError(t, l.AllowKey(key))
	}
}

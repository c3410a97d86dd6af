package qos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuota_TryAcquireInExhausts(t *testing.T) {
	q := NewQuota(2, 0)

	assert.True(t, q.TryAcquireIn())
	assert.True(t, q.TryAcquireIn())
	assert.False(t, q.TryAcquireIn())
	assert.Equal(t, 0, q.In())
}

func TestQuota_ReleaseInRestoresBudget(t *testing.T) {
	q := NewQuota(1, 0)

	require := assert.New(t)
	require.True(q.TryAcquireIn())
	require.False(q.TryAcquireIn())

	q.ReleaseIn()
	require.True(q.TryAcquireIn())
}

func TestQuota_OutAvailableReflectsBudget(t *testing.T) {
	q := NewQuota(0, 1)

	assert.True(t, q.OutAvailable())
	q.AcquireOut()
	assert.False(t, q.OutAvailable())

	q.ReleaseOut()
	assert.True(t, q.OutAvailable())
}

func TestQuota_ZeroOutQuotaStopsDelivery(t *testing.T) {
	q := NewQuota(0, 0)
	assert.False(t, q.OutAvailable())
}

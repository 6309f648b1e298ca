package saga

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextStampIsStrictlyMonotonic(t *testing.T) {
	prev := time.Date(2024, 3, 1, 12, 0, 0, 500_000, time.UTC)

	// Часы не ушли вперед (или отстают на другом узле)
	next := NextStamp(prev, prev.Add(-time.Second))
	assert.True(t, next.After(prev))
	assert.Equal(t, prev.Add(time.Microsecond), next)

	// Обычный случай: берется текущее время с точностью до микросекунд
	now := prev.Add(time.Minute + 123*time.Nanosecond)
	next = NextStamp(prev, now)
	assert.Equal(t, now.Truncate(time.Microsecond), next)
}

func TestNextStampZeroPrev(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 999, time.FixedZone("MSK", 3*3600))

	next := NextStamp(time.Time{}, now)

	assert.Equal(t, time.UTC, next.Location())
	assert.Equal(t, 0, next.Nanosecond()%1000)
}

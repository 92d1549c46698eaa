package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdaptive_RateLimitIncreasesUpToCeiling(t *testing.T) {
	a := NewAdaptive(250*time.Millisecond, 2*time.Second, 3)
	assert.Equal(t, 250*time.Millisecond, a.Delay())

	prev := a.Delay()
	for i := 0; i < 10; i++ {
		next := a.OnRateLimit(0)
		if prev < a.Ceiling() {
			assert.Greater(t, next, prev, "step %d", i)
		}
		assert.GreaterOrEqual(t, next, prev)
		assert.LessOrEqual(t, next, a.Ceiling())
		prev = next
	}
	assert.Equal(t, 2*time.Second, a.Delay())
}

func TestAdaptive_RetryAfterRaisesDelay(t *testing.T) {
	a := NewAdaptive(100*time.Millisecond, 10*time.Second, 2)

	assert.Equal(t, 3*time.Second, a.OnRateLimit(3*time.Second))
	assert.Equal(t, 6*time.Second, a.OnRateLimit(time.Second))
	assert.Equal(t, 10*time.Second, a.OnRateLimit(time.Minute))
}

func TestAdaptive_SuccessesDecayToFloor(t *testing.T) {
	a := NewAdaptive(100*time.Millisecond, 10*time.Second, 2)
	a.OnRateLimit(0)
	a.OnRateLimit(0)
	a.OnRateLimit(0)
	assert.Equal(t, 800*time.Millisecond, a.Delay())

	// один успех меньше порога не меняет паузу
	assert.Equal(t, 800*time.Millisecond, a.OnSuccess())
	assert.Equal(t, 400*time.Millisecond, a.OnSuccess())

	for i := 0; i < 20; i++ {
		d := a.OnSuccess()
		assert.GreaterOrEqual(t, d, a.Floor())
	}
	assert.Equal(t, 100*time.Millisecond, a.Delay())
}

func TestAdaptive_RateLimitResetsStreak(t *testing.T) {
	a := NewAdaptive(100*time.Millisecond, time.Second, 2)
	a.OnRateLimit(0)
	a.OnSuccess()
	a.OnRateLimit(0)

	assert.Equal(t, 400*time.Millisecond, a.OnSuccess())
	assert.Equal(t, 200*time.Millisecond, a.OnSuccess())
}

func TestNewAdaptive_NormalizesBounds(t *testing.T) {
	a := NewAdaptive(time.Second, time.Millisecond, 0)
	assert.Equal(t, time.Second, a.Floor())
	assert.Equal(t, time.Second, a.Ceiling())
	assert.Equal(t, time.Second, a.OnRateLimit(0))
	assert.Equal(t, time.Second, a.OnSuccess())
}

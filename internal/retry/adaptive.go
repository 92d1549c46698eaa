package retry

import (
	"sync"
	"time"
)

// Adaptive - пауза между одиночными удалениями, которая удваивается при
// rate limit и уменьшается вдвое после серии чистых успехов.
// Значение всегда лежит в [floor, ceiling].
type Adaptive struct {
	mu         sync.Mutex
	floor      time.Duration
	ceiling    time.Duration
	decayAfter int
	current    time.Duration
	streak     int
}

// NewAdaptive создаёт задержку, начинающуюся с floor.
func NewAdaptive(floor, ceiling time.Duration, decayAfter int) *Adaptive {
	if floor <= 0 {
		floor = time.Millisecond
	}
	if ceiling < floor {
		ceiling = floor
	}
	if decayAfter < 1 {
		decayAfter = 1
	}
	return &Adaptive{
		floor:      floor,
		ceiling:    ceiling,
		decayAfter: decayAfter,
		current:    floor,
	}
}

// Delay возвращает текущую паузу.
func (a *Adaptive) Delay() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Floor возвращает нижнюю границу.
func (a *Adaptive) Floor() time.Duration { return a.floor }

// Ceiling возвращает верхнюю границу.
func (a *Adaptive) Ceiling() time.Duration { return a.ceiling }

// OnRateLimit удваивает паузу, но не меньше retryAfter и не больше ceiling.
// Возвращает новое значение.
func (a *Adaptive) OnRateLimit(retryAfter time.Duration) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streak = 0
	next := a.current * 2
	if next < retryAfter {
		next = retryAfter
	}
	if next > a.ceiling || next <= 0 {
		next = a.ceiling
	}
	a.current = next
	return a.current
}

// OnSuccess отмечает чистое удаление. После decayAfter успехов подряд
// пауза делится пополам, но не опускается ниже floor.
func (a *Adaptive) OnSuccess() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streak++
	if a.streak < a.decayAfter {
		return a.current
	}
	a.streak = 0

	next := a.current / 2
	if next < a.floor {
		next = a.floor
	}
	a.current = next
	return a.current
}

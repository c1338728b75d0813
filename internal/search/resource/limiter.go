package resource

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RatePeriod é a janela da cota de consultas de um resource
const RatePeriod = 24 * time.Hour

// Limiter é a cota diária de um resource: um token bucket que reabastece
// rate tokens por RatePeriod, com capacidade rate.
type Limiter struct {
	mu     sync.Mutex
	bucket *rate.Limiter
	now    func() time.Time
}

// NewLimiter cria um limiter com metade da cota disponível
func NewLimiter(perPeriod int, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	if perPeriod < 1 {
		perPeriod = 1
	}
	l := &Limiter{
		bucket: rate.NewLimiter(limitOf(perPeriod), perPeriod),
		now:    now,
	}
	l.bucket.ReserveN(now(), perPeriod-perPeriod/2)
	return l
}

func limitOf(perPeriod int) rate.Limit {
	return rate.Limit(float64(perPeriod) / RatePeriod.Seconds())
}

// Allow consome uma consulta da cota, se houver mais de uma disponível
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	return l.bucket.TokensAt(now) > 1 && l.bucket.AllowN(now, 1)
}

// Allowance devolve a cota atual, sem consumir
func (l *Limiter) Allowance() float64 {
	return l.bucket.TokensAt(l.now())
}

func (l *Limiter) setRate(perPeriod int) {
	if perPeriod < 1 {
		perPeriod = 1
	}
	now := l.now()
	l.bucket.SetLimitAt(now, limitOf(perPeriod))
	l.bucket.SetBurstAt(now, perPeriod)
}

package transport

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
)

// Lossy drops a fraction of outbound lines before they reach the wrapped
// transport, to exercise repeat requests over reliable links.
type Lossy struct {
	LineTransport

	rate    float64
	random  func() float64
	dropped atomic.Int64
}

// NewLossy wraps t so that each SendLine is silently dropped with probability
// rate.
func NewLossy(t LineTransport, rate float64) *Lossy {
	return &Lossy{LineTransport: t, rate: rate, random: rand.Float64}
}

// SendLine forwards line unless it is chosen to be lost.
func (l *Lossy) SendLine(ctx context.Context, peer, line string) error {
	if l.rate > 0 && l.random() < l.rate {
		l.dropped.Add(1)
		return nil
	}
	return l.LineTransport.SendLine(ctx, peer, line)
}

// Dropped returns how many lines were lost on purpose.
func (l *Lossy) Dropped() int64 { return l.dropped.Load() }

package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// Stats counts protocol traffic for one engine.
type Stats struct {
	LinesSent  atomic.Int64 // lines handed to the transport
	LinesRecv  atomic.Int64 // raw lines received from peers
	BytesSent  atomic.Int64
	BytesRecv  atomic.Int64
	Delivered  atomic.Int64 // transfers reassembled and handed to the application
	Repeats    atomic.Int64 // repeat requests sent to peers
	Duplicates atomic.Int64 // replayed lines dropped
	SendErrors atomic.Int64
}

func (s *Stats) AddSent(n int) {
	s.LinesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *Stats) AddRecv(n int) {
	s.LinesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *Stats) AddDelivered() { s.Delivered.Add(1) }
func (s *Stats) AddRepeat()    { s.Repeats.Add(1) }
func (s *Stats) AddDuplicate() { s.Duplicates.Add(1) }
func (s *Stats) AddSendError() { s.SendErrors.Add(1) }

// StatsSnapshot is a plain copy of the counters.
type StatsSnapshot struct {
	LinesSent, LinesRecv   int64
	BytesSent, BytesRecv   int64
	Delivered, Repeats     int64
	Duplicates, SendErrors int64
}

// Snapshot reads every counter.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		LinesSent:  s.LinesSent.Load(),
		LinesRecv:  s.LinesRecv.Load(),
		BytesSent:  s.BytesSent.Load(),
		BytesRecv:  s.BytesRecv.Load(),
		Delivered:  s.Delivered.Load(),
		Repeats:    s.Repeats.Load(),
		Duplicates: s.Duplicates.Load(),
		SendErrors: s.SendErrors.Load(),
	}
}

// StartStatsReporter logs the traffic of s every interval while anything
// changed. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, s *Stats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev StatsSnapshot
		for {
			select {
			case <-ticker.C:
				cur := s.Snapshot()
				if cur != prev {
					pterm.DefaultLogger.Info(formatStats(prev, cur))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB"}

// formatBytes formats a byte count with a fixed width of 8 characters,
// e.g. "99.0   B" or " 1.5 KiB".
func formatBytes(b float64) string {
	unitIdx := 0
	for b > 99 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}
	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats describes the traffic between two snapshots.
func formatStats(prev, cur StatsSnapshot) string {
	return fmt.Sprintf("Out: %s %3d lines | In: %s %3d lines | Msg: %2d delivered %2d repeats %2d dup %2d err",
		formatBytes(float64(cur.BytesSent-prev.BytesSent)),
		cur.LinesSent-prev.LinesSent,
		formatBytes(float64(cur.BytesRecv-prev.BytesRecv)),
		cur.LinesRecv-prev.LinesRecv,
		cur.Delivered-prev.Delivered,
		cur.Repeats-prev.Repeats,
		cur.Duplicates-prev.Duplicates,
		cur.SendErrors-prev.SendErrors,
	)
}

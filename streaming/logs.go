package streaming

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
)

func (s *Streamer) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(s.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			s.logSummary()
		}
	}
}

func (s *Streamer) incCounter(name string, n int) {
	if n == 0 {
		return
	}

	s.counterMutex.Lock()
	defer s.counterMutex.Unlock()

	s.counter[name] += n
}

func (s *Streamer) logSummary() {
	s.counterMutex.Lock()
	defer s.counterMutex.Unlock()

	if len(s.counter) == 0 {
		return
	}

	summary := s.Summary()
	entry := logs.
		WithTag("streamer", s.name).
		WithTag("time_interval", s.summaryInterval).
		WithTag("height", summary.Height).
		WithTag("chunks_active", summary.ChunksActive)

	for k, v := range s.counter {
		entry = entry.WithTag(k, v)
		delete(s.counter, k)
	}

	entry.Info("terrain streaming summary")
}

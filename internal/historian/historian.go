// internal/historian/historian.go
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/threes/internal/cache"
	"github.com/sirupsen/logrus"
)

// Queue yields room actions in publish order.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*cache.ActionRecord, error)
}

// ActionStore persists a batch of room actions.
type ActionStore interface {
	InsertActions(ctx context.Context, recs []cache.ActionRecord) error
}

// Options tunes batching. Zero values fall back to defaults.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	PopTimeout    time.Duration
	Logger        logrus.FieldLogger
}

const (
	DefaultBatchSize     = 20
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultPopTimeout    = time.Second
)

// Service drains the action queue into the store in batches.
type Service struct {
	queue Queue
	store ActionStore
	log   logrus.FieldLogger

	batchSize     int
	flushInterval time.Duration
	popTimeout    time.Duration

	batchMu   sync.Mutex
	batch     []cache.ActionRecord
	lastFlush time.Time
}

// New builds a Service reading from queue and writing to store.
func New(queue Queue, store ActionStore, opts Options) *Service {
	s := &Service{
		queue:         queue,
		store:         store,
		log:           opts.Logger,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		popTimeout:    opts.PopTimeout,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.flushInterval <= 0 {
		s.flushInterval = DefaultFlushInterval
	}
	if s.popTimeout <= 0 {
		s.popTimeout = DefaultPopTimeout
	}
	s.batch = make([]cache.ActionRecord, 0, s.batchSize)
	return s
}

// Run pops actions until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("historian started")
	s.batchMu.Lock()
	s.lastFlush = time.Now()
	s.batchMu.Unlock()
	for {
		select {
		case <-ctx.Done():
			// ctx is already cancelled; give the final flush its own deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.Flush(flushCtx)
			cancel()
			s.log.Info("historian stopped")
			return
		default:
		}

		rec, err := s.queue.Pop(ctx, s.popTimeout)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			continue
		case err != nil:
			s.log.WithError(err).Warn("failed to pop room action")
			select {
			case <-ctx.Done():
			case <-time.After(s.popTimeout):
			}
		case rec != nil:
			s.append(ctx, *rec)
		}

		if s.flushDue() {
			s.Flush(ctx)
		}
	}
}

func (s *Service) append(ctx context.Context, rec cache.ActionRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

func (s *Service) flushDue() bool {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return time.Since(s.lastFlush) >= s.flushInterval
}

// Flush writes the pending batch. A failed batch is logged and dropped.
func (s *Service) Flush(ctx context.Context) int {
	s.batchMu.Lock()
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return 0
	}
	pending := make([]cache.ActionRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.store.InsertActions(ctx, pending); err != nil {
		s.log.WithError(err).Errorf("failed to flush %d room actions", len(pending))
		return 0
	}
	s.log.Debugf("flushed %d room actions", len(pending))
	return len(pending)
}

// Pending reports how many actions are waiting for the next flush.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

// HistoryService records recently used targets with a buffered channel and
// a background worker, so connects never wait on the history store.
type HistoryService struct {
	store       session.RecentTargetStore
	entries     chan session.RecentTarget
	wg          sync.WaitGroup
	logger      *slog.Logger
	channelSize int
	sendTimeout time.Duration // 0 = drop immediately, >0 = block up to this duration
	dropCount   atomic.Int64
	stopOnce    sync.Once
}

// HistoryOption configures HistoryService.
type HistoryOption func(*HistoryService)

// WithHistoryChannelSize sets the size of the history channel buffer.
func WithHistoryChannelSize(size int) HistoryOption {
	return func(s *HistoryService) {
		if size < 1 {
			size = 1
		}
		s.entries = make(chan session.RecentTarget, size)
		s.channelSize = size
	}
}

// WithHistorySendTimeout sets how long Record blocks on a full channel
// before dropping the entry.
func WithHistorySendTimeout(timeout time.Duration) HistoryOption {
	return func(s *HistoryService) {
		s.sendTimeout = timeout
	}
}

// NewHistoryService creates a HistoryService writing to store.
func NewHistoryService(store session.RecentTargetStore, logger *slog.Logger, opts ...HistoryOption) *HistoryService {
	defaultChannelSize := 256
	s := &HistoryService{
		store:       store,
		entries:     make(chan session.RecentTarget, defaultChannelSize),
		logger:      logger,
		channelSize: defaultChannelSize,
		sendTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background worker.
func (s *HistoryService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record queues entry for the history store. On a full channel it waits
// up to the send timeout, then drops the entry and counts it. Must not be
// called after Stop.
func (s *HistoryService) Record(entry session.RecentTarget) {
	select {
	case s.entries <- entry:
		return
	default:
	}

	if s.sendTimeout <= 0 {
		s.recordDrop(entry)
		return
	}

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()
	select {
	case s.entries <- entry:
	case <-timer.C:
		s.recordDrop(entry)
	}
}

// Recent returns up to n unique targets for owner, newest first. It reads
// the store directly, so entries still queued are not visible yet.
func (s *HistoryService) Recent(ctx context.Context, owner string, n int) ([]string, error) {
	if n <= 0 {
		n = session.DefaultRecentLimit
	}
	return s.store.Recent(ctx, owner, n)
}

// DroppedEntries returns the number of entries dropped under backpressure.
func (s *HistoryService) DroppedEntries() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns current channel usage.
func (s *HistoryService) ChannelDepth() int {
	return len(s.entries)
}

// ChannelCapacity returns the channel buffer size.
func (s *HistoryService) ChannelCapacity() int {
	return s.channelSize
}

// Stop closes the channel and waits for queued entries to be written.
func (s *HistoryService) Stop() {
	s.stopOnce.Do(func() {
		close(s.entries)
	})
	s.wg.Wait()
}

func (s *HistoryService) recordDrop(entry session.RecentTarget) {
	drops := s.dropCount.Add(1)
	s.logger.Warn("history entry dropped",
		"target", entry.Address,
		"total_drops", drops,
	)
}

// worker writes entries until the channel is closed or ctx is cancelled,
// then drains whatever is still queued with a bounded deadline.
func (s *HistoryService) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case entry, ok := <-s.entries:
			if !ok {
				return
			}
			s.write(ctx, entry)

		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case entry, ok := <-s.entries:
					if !ok {
						return
					}
					s.write(drainCtx, entry)
				default:
					return
				}
			}
		}
	}
}

func (s *HistoryService) write(ctx context.Context, entry session.RecentTarget) {
	if err := s.store.Record(ctx, entry); err != nil {
		s.logger.Error("failed to record recent target",
			"target", entry.Address,
			"error", err,
		)
	}
}

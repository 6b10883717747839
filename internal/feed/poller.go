package feed

import (
	"context"
	"expvar"
	"log"
	"sync/atomic"
	"time"

	"github.com/KamogeloT/MediFlow/internal/store"
)

var feedEventsTotal = expvar.NewInt("feed_events_total")

// Source is the slice of the store the poller reads. Satisfied by both the
// postgres and memory stores.
type Source interface {
	ListFeedEvents(ctx context.Context, offset store.FeedOffset, limit int) ([]store.FeedEvent, error)
	GetFeedOffset(ctx context.Context) (store.FeedOffset, error)
	UpdateFeedOffset(ctx context.Context, offset store.FeedOffset) error
}

// Poller drains the change feed after a persisted offset and publishes each
// event through a Synchronizer. Restarting from a stale offset redelivers;
// consumers are expected to converge by id.
type Poller struct {
	source    Source
	sync      *Synchronizer
	interval  time.Duration
	batchSize int
	offset    store.FeedOffset
	loaded    bool
	running   int32
}

func NewPoller(source Source, sync *Synchronizer, interval time.Duration, batchSize int) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Poller{source: source, sync: sync, interval: interval, batchSize: batchSize}
}

// Poll performs one drain pass. Overlapping passes are skipped rather than
// queued, matching the ticker loop in Run.
func (p *Poller) Poll(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&p.running, 0)

	if !p.loaded {
		offset, err := p.source.GetFeedOffset(ctx)
		if err != nil {
			return err
		}
		p.offset = offset
		p.loaded = true
	}

	events, err := p.source.ListFeedEvents(ctx, p.offset, p.batchSize)
	if err != nil {
		return err
	}
	for _, raw := range events {
		p.offset.LastEventTime = raw.CreatedAt
		p.offset.LastEventID = raw.EventID
		entry, err := store.DecodeFeedEntry(raw)
		if err != nil {
			log.Printf("feed decode error event=%s: %v", raw.EventID, err)
			continue
		}
		feedEventsTotal.Add(1)
		p.sync.Publish(Event{Kind: Kind(raw.Kind), Entry: entry, CreatedAt: raw.CreatedAt})
	}
	if len(events) > 0 {
		if err := p.source.UpdateFeedOffset(ctx, p.offset); err != nil {
			return err
		}
	}
	return nil
}

// Run polls on the configured interval until the context ends.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				log.Printf("feed poll error: %v", err)
			}
		}
	}
}

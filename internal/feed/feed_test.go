package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KamogeloT/MediFlow/internal/models"
	"github.com/KamogeloT/MediFlow/internal/store"
)

func TestSubscribePublish(t *testing.T) {
	sync := NewSynchronizer()

	var got []Event
	unsubscribe := sync.Subscribe(func(event Event) {
		got = append(got, event)
	})
	defer unsubscribe()

	sync.Publish(Event{Kind: Insert, Entry: models.QueueEntry{ID: "e1"}})
	sync.Publish(Event{Kind: Update, Entry: models.QueueEntry{ID: "e1"}})

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Kind != Insert || got[1].Kind != Update {
		t.Fatalf("unexpected kinds: %v, %v", got[0].Kind, got[1].Kind)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	sync := NewSynchronizer()

	var firstCount, secondCount int
	unsubscribe := sync.Subscribe(func(Event) { firstCount++ })
	other := sync.Subscribe(func(Event) { secondCount++ })
	defer other()

	sync.Publish(Event{Kind: Insert})
	unsubscribe()
	sync.Publish(Event{Kind: Insert})

	if firstCount != 1 {
		t.Fatalf("expected 1 delivery to released handler, got %d", firstCount)
	}
	if secondCount != 2 {
		t.Fatalf("expected 2 deliveries to remaining handler, got %d", secondCount)
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	sync := NewSynchronizer()
	first := sync.Subscribe(func(Event) {})

	var delivered int
	second := sync.Subscribe(func(Event) { delivered++ })
	defer second()

	// Releasing twice must not disturb later registrations.
	first()
	first()

	sync.Publish(Event{Kind: Delete})
	if delivered != 1 {
		t.Fatalf("expected 1 delivery after double release, got %d", delivered)
	}
}

type fakeSource struct {
	listFn   func(ctx context.Context, offset store.FeedOffset, limit int) ([]store.FeedEvent, error)
	getFn    func(ctx context.Context) (store.FeedOffset, error)
	updateFn func(ctx context.Context, offset store.FeedOffset) error
}

func (f fakeSource) ListFeedEvents(ctx context.Context, offset store.FeedOffset, limit int) ([]store.FeedEvent, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, offset, limit)
}

func (f fakeSource) GetFeedOffset(ctx context.Context) (store.FeedOffset, error) {
	if f.getFn == nil {
		return store.FeedOffset{}, nil
	}
	return f.getFn(ctx)
}

func (f fakeSource) UpdateFeedOffset(ctx context.Context, offset store.FeedOffset) error {
	if f.updateFn == nil {
		return nil
	}
	return f.updateFn(ctx, offset)
}

func feedEvent(t *testing.T, id string, kind string, entry models.QueueEntry, at time.Time) store.FeedEvent {
	t.Helper()
	payload, err := store.EncodeFeedEntry(entry)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return store.FeedEvent{EventID: id, Kind: kind, Payload: payload, CreatedAt: at}
}

func TestPollerPublishesAndAdvancesOffset(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	events := []store.FeedEvent{
		feedEvent(t, "01", store.FeedInsert, models.QueueEntry{ID: "e1", Status: models.StatusWaiting}, base),
		feedEvent(t, "02", store.FeedUpdate, models.QueueEntry{ID: "e1", Status: models.StatusInConsultation}, base.Add(time.Second)),
	}

	var savedOffset store.FeedOffset
	source := fakeSource{
		listFn: func(ctx context.Context, offset store.FeedOffset, limit int) ([]store.FeedEvent, error) {
			var pending []store.FeedEvent
			for _, event := range events {
				if event.CreatedAt.After(offset.LastEventTime) ||
					(event.CreatedAt.Equal(offset.LastEventTime) && event.EventID > offset.LastEventID) {
					pending = append(pending, event)
				}
			}
			return pending, nil
		},
		updateFn: func(ctx context.Context, offset store.FeedOffset) error {
			savedOffset = offset
			return nil
		},
	}

	sync := NewSynchronizer()
	var delivered []Event
	defer sync.Subscribe(func(event Event) { delivered = append(delivered, event) })()

	poller := NewPoller(source, sync, time.Second, 100)
	if err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if len(delivered) != 2 {
		t.Fatalf("expected 2 events delivered, got %d", len(delivered))
	}
	if delivered[1].Entry.Status != models.StatusInConsultation {
		t.Fatalf("unexpected second event entry: %+v", delivered[1].Entry)
	}
	if savedOffset.LastEventID != "02" {
		t.Fatalf("expected offset advanced to 02, got %+v", savedOffset)
	}

	// Nothing past the offset: second pass delivers nothing new.
	if err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(delivered) != 2 {
		t.Fatalf("expected no redelivery past offset, got %d events", len(delivered))
	}
}

func TestPollerResumesFromPersistedOffset(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	events := []store.FeedEvent{
		feedEvent(t, "01", store.FeedInsert, models.QueueEntry{ID: "e1"}, base),
		feedEvent(t, "02", store.FeedInsert, models.QueueEntry{ID: "e2"}, base.Add(time.Second)),
	}

	source := fakeSource{
		getFn: func(ctx context.Context) (store.FeedOffset, error) {
			return store.FeedOffset{LastEventTime: base, LastEventID: "01"}, nil
		},
		listFn: func(ctx context.Context, offset store.FeedOffset, limit int) ([]store.FeedEvent, error) {
			var pending []store.FeedEvent
			for _, event := range events {
				if event.CreatedAt.After(offset.LastEventTime) {
					pending = append(pending, event)
				}
			}
			return pending, nil
		},
	}

	sync := NewSynchronizer()
	var delivered []Event
	defer sync.Subscribe(func(event Event) { delivered = append(delivered, event) })()

	poller := NewPoller(source, sync, time.Second, 100)
	if err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if len(delivered) != 1 || delivered[0].Entry.ID != "e2" {
		t.Fatalf("expected only e2 after persisted offset, got %+v", delivered)
	}
}

func TestPollerSkipsUndecodableEvents(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	events := []store.FeedEvent{
		{EventID: "01", Kind: store.FeedInsert, Payload: []byte("not json"), CreatedAt: base},
		feedEvent(t, "02", store.FeedInsert, models.QueueEntry{ID: "e2"}, base.Add(time.Second)),
	}

	served := false
	source := fakeSource{
		listFn: func(ctx context.Context, offset store.FeedOffset, limit int) ([]store.FeedEvent, error) {
			if served {
				return nil, nil
			}
			served = true
			return events, nil
		},
	}

	sync := NewSynchronizer()
	var delivered []Event
	defer sync.Subscribe(func(event Event) { delivered = append(delivered, event) })()

	poller := NewPoller(source, sync, time.Second, 100)
	if err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(delivered) != 1 || delivered[0].Entry.ID != "e2" {
		t.Fatalf("expected the decodable event only, got %+v", delivered)
	}
}

func TestPollerPropagatesSourceErrors(t *testing.T) {
	wantErr := errors.New("boom")
	source := fakeSource{
		listFn: func(ctx context.Context, offset store.FeedOffset, limit int) ([]store.FeedEvent, error) {
			return nil, wantErr
		},
	}

	poller := NewPoller(source, NewSynchronizer(), time.Second, 100)
	if err := poller.Poll(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected source error, got %v", err)
	}
}

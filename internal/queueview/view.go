// Package queueview maintains a client-local projection of the queue,
// grouped by status and optionally filtered by department. It is the
// consumer side of the snapshot-then-subscribe contract: List first, then
// merge feed events by entry id, last write wins on arrival order.
package queueview

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/KamogeloT/MediFlow/internal/feed"
	"github.com/KamogeloT/MediFlow/internal/models"
	"github.com/KamogeloT/MediFlow/internal/store"
)

// FilterAll disables department filtering.
const FilterAll = "all"

// Repository is the slice of the store the view needs.
type Repository interface {
	ListQueue(ctx context.Context) ([]models.QueueEntry, error)
	UpdateStatus(ctx context.Context, input store.UpdateStatusInput) (models.QueueEntry, error)
}

// Feed is the subscription side of the synchronizer.
type Feed interface {
	Subscribe(handler feed.Handler) func()
}

type View struct {
	repo Repository
	feed Feed

	mu          sync.Mutex
	entries     map[string]models.QueueEntry
	revisions   map[string]uint64
	pending     map[string]string
	department  string
	unsubscribe func()
	closed      bool
}

func New(repo Repository, feedSource Feed) *View {
	return &View{
		repo:       repo,
		feed:       feedSource,
		entries:    make(map[string]models.QueueEntry),
		revisions:  make(map[string]uint64),
		pending:    make(map[string]string),
		department: FilterAll,
	}
}

// Initialize loads the snapshot, then subscribes. Events racing with the
// snapshot arrive after it by construction, so plain overwrite-by-id is the
// required last-write-wins.
func (v *View) Initialize(ctx context.Context) error {
	entries, err := v.repo.ListQueue(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	for _, entry := range entries {
		v.applyLocked(entry)
	}
	v.mu.Unlock()

	unsubscribe := v.feed.Subscribe(v.handleEvent)
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		unsubscribe()
		return nil
	}
	v.unsubscribe = unsubscribe
	v.mu.Unlock()
	return nil
}

func (v *View) handleEvent(event feed.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	switch event.Kind {
	case feed.Insert, feed.Update:
		v.applyLocked(event.Entry)
		if awaited, ok := v.pending[event.Entry.ID]; ok && awaited == event.Entry.Status {
			delete(v.pending, event.Entry.ID)
		}
	case feed.Delete:
		delete(v.entries, event.Entry.ID)
		delete(v.pending, event.Entry.ID)
		v.revisions[event.Entry.ID]++
	}
}

func (v *View) applyLocked(entry models.QueueEntry) {
	v.entries[entry.ID] = entry
	v.revisions[entry.ID]++
}

// CheckIn requests waiting -> in-consultation. The local projection is not
// mutated here; the feed echo applies the change. The entry is marked
// pending until the echo lands so callers can render optimistically.
func (v *View) CheckIn(ctx context.Context, entryID, doctorID string) error {
	return v.transition(ctx, entryID, models.StatusInConsultation, doctorID)
}

// Complete requests in-consultation -> completed.
func (v *View) Complete(ctx context.Context, entryID string) error {
	return v.transition(ctx, entryID, models.StatusCompleted, "")
}

func (v *View) transition(ctx context.Context, entryID, status, doctorID string) error {
	v.mu.Lock()
	v.pending[entryID] = status
	v.mu.Unlock()

	_, err := v.repo.UpdateStatus(ctx, store.UpdateStatusInput{
		EntryID:  entryID,
		Status:   status,
		DoctorID: doctorID,
	})
	if err != nil {
		v.mu.Lock()
		delete(v.pending, entryID)
		v.mu.Unlock()
		return err
	}
	return nil
}

// FilterByDepartment restricts the grouped views. Pass FilterAll (or "") to
// clear. Pure projection, no I/O.
func (v *View) FilterByDepartment(department string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if department == "" {
		department = FilterAll
	}
	v.department = department
}

func (v *View) Waiting() []models.QueueEntry {
	return v.byStatus(models.StatusWaiting)
}

func (v *View) InConsultation() []models.QueueEntry {
	return v.byStatus(models.StatusInConsultation)
}

func (v *View) Completed() []models.QueueEntry {
	return v.byStatus(models.StatusCompleted)
}

// Entries returns the whole projection after department filtering, oldest
// first.
func (v *View) Entries() []models.QueueEntry {
	return v.collect(func(models.QueueEntry) bool { return true })
}

func (v *View) byStatus(status string) []models.QueueEntry {
	return v.collect(func(entry models.QueueEntry) bool { return entry.Status == status })
}

func (v *View) collect(keep func(models.QueueEntry) bool) []models.QueueEntry {
	v.mu.Lock()
	defer v.mu.Unlock()

	var entries []models.QueueEntry
	for _, entry := range v.entries {
		if v.department != FilterAll && entry.Department != v.department {
			continue
		}
		if keep(entry) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AddedAt.Equal(entries[j].AddedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].AddedAt.Before(entries[j].AddedAt)
	})
	return entries
}

// Departments lists the distinct non-empty department labels present,
// ignoring the active filter.
func (v *View) Departments() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	seen := make(map[string]bool)
	var departments []string
	for _, entry := range v.entries {
		if entry.Department == "" || seen[entry.Department] {
			continue
		}
		seen[entry.Department] = true
		departments = append(departments, entry.Department)
	}
	sort.Strings(departments)
	return departments
}

// Pending reports whether a transition for the entry is awaiting its feed
// echo.
func (v *View) Pending(entryID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.pending[entryID]
	return ok
}

// Revision returns the local apply counter for an entry. Grows on every
// applied snapshot row or feed event; used to reason about last-applied-wins.
func (v *View) Revision(entryID string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.revisions[entryID]
}

// Close releases the feed subscription. Events delivered after Close are
// dropped; the view no longer owns its projection.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// WaitDuration is how long the entry has been in the queue.
func WaitDuration(entry models.QueueEntry, now time.Time) time.Duration {
	return now.Sub(entry.AddedAt)
}

// ConsultDuration is how long the entry has been in consultation; zero until
// check-in.
func ConsultDuration(entry models.QueueEntry, now time.Time) time.Duration {
	if entry.CheckedInAt == nil {
		return 0
	}
	return now.Sub(*entry.CheckedInAt)
}

// FormatDuration renders a wait as minutes under an hour, hours and minutes
// beyond that: "45m", "1h 5m".
func FormatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return strconv.Itoa(minutes) + "m"
	}
	return strconv.Itoa(minutes/60) + "h " + strconv.Itoa(minutes%60) + "m"
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KamogeloT/MediFlow/internal/models"
	"github.com/KamogeloT/MediFlow/internal/store"
)

func newPatient(t *testing.T, s *Store, name string) models.Patient {
	t.Helper()
	patient, err := s.CreatePatient(context.Background(), name)
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return patient
}

func TestAddEntryDefaults(t *testing.T) {
	s := NewStore()
	patient := newPatient(t, s, "Jane Mokoena")

	entry, err := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if entry.Status != models.StatusWaiting {
		t.Fatalf("expected waiting, got %q", entry.Status)
	}
	if entry.Priority != models.PriorityNormal {
		t.Fatalf("expected normal priority, got %q", entry.Priority)
	}
	if entry.PatientName != "Jane Mokoena" {
		t.Fatalf("expected patient name resolved, got %q", entry.PatientName)
	}
	if entry.AddedAt.IsZero() {
		t.Fatal("expected added_at set")
	}
	if entry.CheckedInAt != nil || entry.CompletedAt != nil {
		t.Fatalf("expected only added_at stamped, got %+v", entry)
	}
}

func TestAddEntryUnknownPatient(t *testing.T) {
	s := NewStore()
	_, err := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: "missing"})
	if !errors.Is(err, store.ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestAddEntryRejectsActiveDuplicate(t *testing.T) {
	s := NewStore()
	patient := newPatient(t, s, "Jane Mokoena")

	first, err := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID})
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID}); !errors.Is(err, store.ErrPatientAlreadyQueued) {
		t.Fatalf("expected ErrPatientAlreadyQueued, got %v", err)
	}

	// Completing the active entry frees the patient to re-queue.
	if _, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: first.ID, Status: models.StatusInConsultation}); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: first.ID, Status: models.StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID}); err != nil {
		t.Fatalf("re-queue after completion: %v", err)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	s := NewStore()
	patient := newPatient(t, s, "Jane Mokoena")
	doctor := "7d9a1f50-0a68-45f2-8f0a-2f2d5b8f3c11"

	entry, err := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}

	checkedIn, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{
		EntryID:  entry.ID,
		Status:   models.StatusInConsultation,
		DoctorID: doctor,
	})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if checkedIn.CheckedInAt == nil {
		t.Fatal("expected checked_in_at stamped")
	}
	if checkedIn.DoctorID == nil || *checkedIn.DoctorID != doctor {
		t.Fatalf("expected doctor assigned, got %+v", checkedIn.DoctorID)
	}
	if checkedIn.CompletedAt != nil {
		t.Fatal("completed_at must stay empty until completion")
	}

	completed, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{
		EntryID: entry.ID,
		Status:  models.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.CompletedAt == nil {
		t.Fatal("expected completed_at stamped")
	}
	if completed.CheckedInAt == nil {
		t.Fatal("check-in timestamp must survive completion")
	}
}

func TestUpdateStatusRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"skip to completed", models.StatusCompleted},
		{"back to waiting", models.StatusWaiting},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			patient := newPatient(t, s, "Jane Mokoena")
			entry, err := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID})
			if err != nil {
				t.Fatalf("add entry: %v", err)
			}
			_, err = s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: entry.ID, Status: tc.target})
			if !errors.Is(err, store.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestUpdateStatusTerminal(t *testing.T) {
	s := NewStore()
	patient := newPatient(t, s, "Jane Mokoena")
	entry, _ := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID})
	if _, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: entry.ID, Status: models.StatusInConsultation}); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: entry.ID, Status: models.StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	for _, target := range []string{models.StatusWaiting, models.StatusInConsultation} {
		if _, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: entry.ID, Status: target}); !errors.Is(err, store.ErrInvalidTransition) {
			t.Fatalf("target %q: expected ErrInvalidTransition, got %v", target, err)
		}
	}
}

func TestUpdateStatusConflictOnRepeat(t *testing.T) {
	s := NewStore()
	patient := newPatient(t, s, "Jane Mokoena")
	entry, _ := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID})

	if _, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: entry.ID, Status: models.StatusInConsultation}); err != nil {
		t.Fatalf("first check in: %v", err)
	}
	// Second identical request lost the race: the entry already holds the
	// requested status.
	_, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: entry.ID, Status: models.StatusInConsultation})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateStatusUnknownEntry(t *testing.T) {
	s := NewStore()
	_, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: "missing", Status: models.StatusInConsultation})
	if !errors.Is(err, store.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestRemoveEntryIdempotent(t *testing.T) {
	s := NewStore()
	patient := newPatient(t, s, "Jane Mokoena")
	entry, _ := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID})

	if err := s.RemoveEntry(context.Background(), entry.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveEntry(context.Background(), entry.ID); err != nil {
		t.Fatalf("second remove must be a no-op, got %v", err)
	}
	if _, err := s.GetEntry(context.Background(), entry.ID); !errors.Is(err, store.ErrEntryNotFound) {
		t.Fatalf("expected entry gone, got %v", err)
	}
}

func TestListQueueOrdering(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i, name := range []string{"First Patient", "Second Patient", "Third Patient"} {
		patient := newPatient(t, s, name)
		entry, err := s.AddEntry(context.Background(), store.AddEntryInput{
			PatientID: patient.ID,
			AddedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		ids = append(ids, entry.ID)
	}

	entries, err := s.ListQueue(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.ID != ids[i] {
			t.Fatalf("position %d: expected %s, got %s", i, ids[i], entry.ID)
		}
	}
}

func TestFeedEventsPerMutation(t *testing.T) {
	s := NewStore()
	patient := newPatient(t, s, "Jane Mokoena")
	entry, _ := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID})
	if _, err := s.UpdateStatus(context.Background(), store.UpdateStatusInput{EntryID: entry.ID, Status: models.StatusInConsultation}); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if err := s.RemoveEntry(context.Background(), entry.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	events, err := s.ListFeedEvents(context.Background(), store.FeedOffset{LastEventTime: time.Unix(0, 0).UTC()}, 10)
	if err != nil {
		t.Fatalf("list feed: %v", err)
	}
	kinds := make([]string, 0, len(events))
	for _, event := range events {
		kinds = append(kinds, event.Kind)
	}
	want := []string{store.FeedInsert, store.FeedUpdate, store.FeedDelete}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}

	// The delete payload carries the pre-delete snapshot.
	last, err := store.DecodeFeedEntry(events[2])
	if err != nil {
		t.Fatalf("decode delete payload: %v", err)
	}
	if last.ID != entry.ID || last.Status != models.StatusInConsultation {
		t.Fatalf("unexpected delete payload: %+v", last)
	}
}

func TestFeedOffsetPaging(t *testing.T) {
	s := NewStore()
	clockAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return clockAt })

	for _, name := range []string{"First Patient", "Second Patient", "Third Patient"} {
		patient := newPatient(t, s, name)
		if _, err := s.AddEntry(context.Background(), store.AddEntryInput{PatientID: patient.ID}); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}

	offset := store.FeedOffset{LastEventTime: time.Unix(0, 0).UTC()}
	first, err := s.ListFeedEvents(context.Background(), offset, 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 events, got %d", len(first))
	}

	offset = store.FeedOffset{LastEventTime: first[1].CreatedAt, LastEventID: first[1].EventID}
	second, err := s.ListFeedEvents(context.Background(), offset, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected 1 remaining event, got %d", len(second))
	}
	if second[0].EventID <= first[1].EventID {
		t.Fatalf("expected ordering past the offset, got %s after %s", second[0].EventID, first[1].EventID)
	}
}

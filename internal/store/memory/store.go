// Package memory holds an in-process Store used by tests and by local runs
// without a database. The change feed is a plain slice paged the same way the
// postgres outbox is, so pollers behave identically against either backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KamogeloT/MediFlow/internal/models"
	"github.com/KamogeloT/MediFlow/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu          sync.Mutex
	entries     map[string]models.QueueEntry
	order       map[string]int
	patients    map[string]models.Patient
	departments []models.Department
	doctors     []models.Doctor
	doctorDepts map[string][]string
	encounters  []models.Encounter
	events      []store.FeedEvent
	offset      store.FeedOffset
	seq         int
	eventSeq    int
	clock       func() time.Time
}

func NewStore() *Store {
	return &Store{
		entries:     make(map[string]models.QueueEntry),
		order:       make(map[string]int),
		patients:    make(map[string]models.Patient),
		doctorDepts: make(map[string][]string),
		offset:      store.FeedOffset{LastEventTime: time.Unix(0, 0).UTC()},
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the store-assigned timestamp source. Test hook.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Store) AddEntry(ctx context.Context, input store.AddEntryInput) (models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patient, ok := s.patients[input.PatientID]
	if !ok {
		return models.QueueEntry{}, store.ErrPatientNotFound
	}
	for _, existing := range s.entries {
		if existing.PatientID == input.PatientID && existing.Active() {
			return models.QueueEntry{}, store.ErrPatientAlreadyQueued
		}
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	addedAt := input.AddedAt
	if addedAt.IsZero() {
		addedAt = s.clock()
	}

	entry := models.QueueEntry{
		ID:          uuid.NewString(),
		PatientID:   input.PatientID,
		PatientName: patient.FullName,
		Status:      models.StatusWaiting,
		Priority:    priority,
		AddedAt:     addedAt,
		Notes:       input.Notes,
		Department:  input.Department,
	}
	s.seq++
	s.entries[entry.ID] = entry
	s.order[entry.ID] = s.seq
	s.appendEvent(store.FeedInsert, entry)
	return entry, nil
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return entry, nil
}

func (s *Store) ListQueue(ctx context.Context) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]models.QueueEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AddedAt.Equal(entries[j].AddedAt) {
			return s.order[entries[i].ID] < s.order[entries[j].ID]
		}
		return entries[i].AddedAt.Before(entries[j].AddedAt)
	})
	return entries, nil
}

func (s *Store) UpdateStatus(ctx context.Context, input store.UpdateStatusInput) (models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[input.EntryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	transition, ok := store.NextTransition(entry.Status, input.Status)
	if !ok {
		if entry.Status == input.Status {
			if _, valid := store.TransitionSource(input.Status); valid {
				return models.QueueEntry{}, store.ErrConflict
			}
		}
		return models.QueueEntry{}, store.ErrInvalidTransition
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock()
	}
	entry.Status = input.Status
	if transition.SetCheckedIn {
		checkedIn := occurredAt
		entry.CheckedInAt = &checkedIn
		if input.DoctorID != "" {
			doctorID := input.DoctorID
			entry.DoctorID = &doctorID
		}
	}
	if transition.SetCompleted {
		completed := occurredAt
		entry.CompletedAt = &completed
	}
	s.entries[entry.ID] = entry
	s.appendEvent(store.FeedUpdate, entry)
	return entry, nil
}

func (s *Store) RemoveEntry(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return nil
	}
	delete(s.entries, entryID)
	delete(s.order, entryID)
	s.appendEvent(store.FeedDelete, entry)
	return nil
}

func (s *Store) CreatePatient(ctx context.Context, fullName string) (models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patient := models.Patient{ID: uuid.NewString(), FullName: fullName}
	s.patients[patient.ID] = patient
	return patient, nil
}

func (s *Store) AddDepartment(dept models.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	if dept.CreatedAt.IsZero() {
		dept.CreatedAt = s.clock()
	}
	s.departments = append(s.departments, dept)
}

func (s *Store) AddDoctor(doctor models.Doctor, departmentIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doctor.ID == "" {
		doctor.ID = uuid.NewString()
	}
	s.doctors = append(s.doctors, doctor)
	for _, deptID := range departmentIDs {
		s.doctorDepts[deptID] = append(s.doctorDepts[deptID], doctor.ID)
	}
}

func (s *Store) ListDepartments(ctx context.Context) ([]models.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	departments := append([]models.Department(nil), s.departments...)
	sort.Slice(departments, func(i, j int) bool { return departments[i].Name < departments[j].Name })
	return departments, nil
}

func (s *Store) ListDoctors(ctx context.Context, departmentID string) ([]models.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doctors []models.Doctor
	if departmentID == "" {
		doctors = append(doctors, s.doctors...)
	} else {
		members := s.doctorDepts[departmentID]
		for _, doctor := range s.doctors {
			for _, id := range members {
				if doctor.ID == id {
					doctors = append(doctors, doctor)
					break
				}
			}
		}
	}
	sort.Slice(doctors, func(i, j int) bool { return doctors[i].FullName < doctors[j].FullName })
	return doctors, nil
}

func (s *Store) ListEncounters(ctx context.Context, filter store.EncounterFilter) ([]models.Encounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Encounter
	for _, enc := range s.encounters {
		if enc.PatientID != filter.PatientID {
			continue
		}
		if !filter.From.IsZero() && enc.EncounterDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && enc.EncounterDate.After(filter.To) {
			continue
		}
		if filter.Doctor != "" && enc.Doctor != filter.Doctor {
			continue
		}
		if filter.Department != "" && enc.Department != filter.Department {
			continue
		}
		result = append(result, enc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EncounterDate.After(result[j].EncounterDate) })
	return result, nil
}

func (s *Store) CreateEncounter(ctx context.Context, input store.CreateEncounterInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encounterDate := input.EncounterDate
	if encounterDate.IsZero() {
		encounterDate = s.clock()
	}
	enc := models.Encounter{
		ID:            uuid.NewString(),
		PatientID:     input.PatientID,
		EncounterDate: encounterDate,
		Doctor:        input.Doctor,
		Department:    input.Department,
		Notes:         input.Notes,
		Diagnoses:     []models.Diagnosis{},
		Prescriptions: []models.Prescription{},
	}
	for _, diag := range input.Diagnoses {
		diag.ID = uuid.NewString()
		enc.Diagnoses = append(enc.Diagnoses, diag)
	}
	for _, rx := range input.Prescriptions {
		rx.ID = uuid.NewString()
		enc.Prescriptions = append(enc.Prescriptions, rx)
	}
	s.encounters = append(s.encounters, enc)
	return enc.ID, nil
}

func (s *Store) ListFeedEvents(ctx context.Context, offset store.FeedOffset, limit int) ([]store.FeedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	var events []store.FeedEvent
	for _, event := range s.events {
		if !afterOffset(event, offset) {
			continue
		}
		events = append(events, event)
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

func (s *Store) GetFeedOffset(ctx context.Context) (store.FeedOffset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset, nil
}

func (s *Store) UpdateFeedOffset(ctx context.Context, offset store.FeedOffset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = offset
	return nil
}

// appendEvent records a change-feed row. Event ids are zero-padded sequence
// numbers so the (time, id) offset comparison stays total even under a
// frozen test clock.
func (s *Store) appendEvent(kind string, entry models.QueueEntry) {
	payload, err := store.EncodeFeedEntry(entry)
	if err != nil {
		return
	}
	s.eventSeq++
	s.events = append(s.events, store.FeedEvent{
		EventID:   fmt.Sprintf("%016d", s.eventSeq),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: s.clock(),
	})
}

func afterOffset(event store.FeedEvent, offset store.FeedOffset) bool {
	if event.CreatedAt.After(offset.LastEventTime) {
		return true
	}
	if event.CreatedAt.Equal(offset.LastEventTime) {
		return event.EventID > offset.LastEventID
	}
	return false
}

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/KamogeloT/MediFlow/internal/models"
)

type AddEntryInput struct {
	PatientID  string
	Priority   string
	Notes      string
	Department string
	AddedAt    time.Time
}

type UpdateStatusInput struct {
	EntryID    string
	Status     string
	DoctorID   string
	OccurredAt time.Time
}

type EncounterFilter struct {
	PatientID  string
	From       time.Time
	To         time.Time
	Doctor     string
	Department string
}

type CreateEncounterInput struct {
	PatientID     string
	EncounterDate time.Time
	Doctor        string
	Department    string
	Notes         string
	Diagnoses     []models.Diagnosis
	Prescriptions []models.Prescription
}

// Feed event kinds mirror the row-level change kinds the store emits.
const (
	FeedInsert = "INSERT"
	FeedUpdate = "UPDATE"
	FeedDelete = "DELETE"
)

// FeedEvent is one row-level change recorded in the same transaction as the
// mutation that produced it. For DELETE the payload carries pre-delete values.
type FeedEvent struct {
	EventID   string          `json:"event_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// FeedOffset marks the last event a poller has delivered. Resuming from it
// gives at-least-once delivery; consumers converge by entry id.
type FeedOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

// Store is the sole mediator between the domain entities and persistence.
// Raw rows never leak past an implementation.
type Store interface {
	AddEntry(ctx context.Context, input AddEntryInput) (models.QueueEntry, error)
	GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error)
	ListQueue(ctx context.Context) ([]models.QueueEntry, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (models.QueueEntry, error)
	RemoveEntry(ctx context.Context, entryID string) error

	CreatePatient(ctx context.Context, fullName string) (models.Patient, error)
	ListDepartments(ctx context.Context) ([]models.Department, error)
	ListDoctors(ctx context.Context, departmentID string) ([]models.Doctor, error)

	ListEncounters(ctx context.Context, filter EncounterFilter) ([]models.Encounter, error)
	CreateEncounter(ctx context.Context, input CreateEncounterInput) (string, error)

	ListFeedEvents(ctx context.Context, offset FeedOffset, limit int) ([]FeedEvent, error)
	GetFeedOffset(ctx context.Context) (FeedOffset, error)
	UpdateFeedOffset(ctx context.Context, offset FeedOffset) error
}

// DecodeFeedEntry unpacks the queue entry carried by a feed event payload.
func DecodeFeedEntry(event FeedEvent) (models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := json.Unmarshal(event.Payload, &entry); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

// EncodeFeedEntry builds the payload for a feed event from an entry snapshot.
func EncodeFeedEntry(entry models.QueueEntry) (json.RawMessage, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

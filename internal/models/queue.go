package models

import "time"

// QueueEntry is one patient's position in the day's consultation queue.
type QueueEntry struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patient_id"`
	PatientName string     `json:"patient_name,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AddedAt     time.Time  `json:"added_at"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	DoctorID    *string    `json:"doctor_id,omitempty"`
	Department  string     `json:"department,omitempty"`
}

const (
	StatusWaiting        = "waiting"
	StatusInConsultation = "in-consultation"
	StatusCompleted      = "completed"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusInConsultation, StatusCompleted:
		return true
	}
	return false
}

func ValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Active reports whether the entry still occupies the queue.
func (e QueueEntry) Active() bool {
	return e.Status != StatusCompleted
}

package models

import "time"

type Patient struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

type Department struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Doctor struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
}

// Encounter is one past consultation in a patient's history, with its
// nested diagnoses and prescriptions.
type Encounter struct {
	ID            string         `json:"id"`
	PatientID     string         `json:"patient_id"`
	EncounterDate time.Time      `json:"encounter_date"`
	Doctor        string         `json:"doctor,omitempty"`
	Department    string         `json:"department,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Diagnoses     []Diagnosis    `json:"diagnoses"`
	Prescriptions []Prescription `json:"prescriptions"`
}

type Diagnosis struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type Prescription struct {
	ID           string `json:"id"`
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/KamogeloT/MediFlow/internal/models"
	"github.com/KamogeloT/MediFlow/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListEncounters returns a patient's history newest first, with nested
// diagnoses and prescriptions resolved in two batched lookups.
func (s *Store) ListEncounters(ctx context.Context, filter store.EncounterFilter) ([]models.Encounter, error) {
	query := `
		SELECT id, patient_id, encounter_date, COALESCE(doctor, ''), COALESCE(department, ''), COALESCE(notes, '')
		FROM encounters
		WHERE patient_id = $1
	`
	args := []interface{}{filter.PatientID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND encounter_date >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND encounter_date <= $` + strconv.Itoa(len(args))
	}
	if filter.Doctor != "" {
		args = append(args, filter.Doctor)
		query += ` AND doctor = $` + strconv.Itoa(len(args))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		query += ` AND department = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY encounter_date DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var encounters []models.Encounter
	var ids []string
	index := make(map[string]int)
	for rows.Next() {
		var enc models.Encounter
		if err := rows.Scan(&enc.ID, &enc.PatientID, &enc.EncounterDate, &enc.Doctor, &enc.Department, &enc.Notes); err != nil {
			return nil, err
		}
		enc.Diagnoses = []models.Diagnosis{}
		enc.Prescriptions = []models.Prescription{}
		index[enc.ID] = len(encounters)
		encounters = append(encounters, enc)
		ids = append(ids, enc.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(encounters) == 0 {
		return encounters, nil
	}

	diagRows, err := s.pool.Query(ctx, `
		SELECT encounter_id, id, description
		FROM diagnoses
		WHERE encounter_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer diagRows.Close()
	for diagRows.Next() {
		var encounterID string
		var diag models.Diagnosis
		if err := diagRows.Scan(&encounterID, &diag.ID, &diag.Description); err != nil {
			return nil, err
		}
		if i, ok := index[encounterID]; ok {
			encounters[i].Diagnoses = append(encounters[i].Diagnoses, diag)
		}
	}
	if err := diagRows.Err(); err != nil {
		return nil, err
	}

	rxRows, err := s.pool.Query(ctx, `
		SELECT encounter_id, id, medication, COALESCE(dosage, ''), COALESCE(instructions, '')
		FROM prescriptions
		WHERE encounter_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rxRows.Close()
	for rxRows.Next() {
		var encounterID string
		var rx models.Prescription
		if err := rxRows.Scan(&encounterID, &rx.ID, &rx.Medication, &rx.Dosage, &rx.Instructions); err != nil {
			return nil, err
		}
		if i, ok := index[encounterID]; ok {
			encounters[i].Prescriptions = append(encounters[i].Prescriptions, rx)
		}
	}
	if err := rxRows.Err(); err != nil {
		return nil, err
	}

	return encounters, nil
}

func (s *Store) CreateEncounter(ctx context.Context, input store.CreateEncounterInput) (string, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	encounterDate := input.EncounterDate
	if encounterDate.IsZero() {
		encounterDate = time.Now().UTC()
	}
	encounterID := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO encounters (id, patient_id, encounter_date, doctor, department, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, encounterID, input.PatientID, encounterDate, nullIfEmpty(input.Doctor), nullIfEmpty(input.Department), nullIfEmpty(input.Notes))
	if err != nil {
		return "", err
	}

	for _, diag := range input.Diagnoses {
		_, err = tx.Exec(ctx, `
			INSERT INTO diagnoses (id, encounter_id, description)
			VALUES ($1, $2, $3)
		`, uuid.NewString(), encounterID, diag.Description)
		if err != nil {
			return "", err
		}
	}
	for _, rx := range input.Prescriptions {
		_, err = tx.Exec(ctx, `
			INSERT INTO prescriptions (id, encounter_id, medication, dosage, instructions)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.NewString(), encounterID, rx.Medication, nullIfEmpty(rx.Dosage), nullIfEmpty(rx.Instructions))
		if err != nil {
			return "", err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return "", err
	}
	return encounterID, nil
}


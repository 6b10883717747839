package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/KamogeloT/MediFlow/internal/models"
	"github.com/KamogeloT/MediFlow/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const entryColumns = `
	q.id, q.patient_id, COALESCE(p.full_name, ''), q.status, q.priority,
	q.added_at, q.checked_in_at, q.completed_at, q.notes, q.doctor_id, q.department
`

func (s *Store) AddEntry(ctx context.Context, input store.AddEntryInput) (models.QueueEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var patientName string
	row := tx.QueryRow(ctx, `SELECT full_name FROM patients WHERE id = $1`, input.PatientID)
	if err = row.Scan(&patientName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrPatientNotFound
		}
		return models.QueueEntry{}, err
	}

	var active int
	row = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM queue
		WHERE patient_id = $1 AND status <> $2
	`, input.PatientID, models.StatusCompleted)
	if err = row.Scan(&active); err != nil {
		return models.QueueEntry{}, err
	}
	if active > 0 {
		err = store.ErrPatientAlreadyQueued
		return models.QueueEntry{}, err
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	addedAt := input.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}

	entry := models.QueueEntry{
		ID:          uuid.NewString(),
		PatientID:   input.PatientID,
		PatientName: patientName,
		Status:      models.StatusWaiting,
		Priority:    priority,
		Notes:       input.Notes,
		Department:  input.Department,
	}
	// The COUNT above is only a fast path; the unique partial index on
	// active entries is what holds under concurrent inserts.
	row = tx.QueryRow(ctx, `
		INSERT INTO queue (id, patient_id, status, priority, added_at, notes, department)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING added_at
	`, entry.ID, entry.PatientID, entry.Status, entry.Priority, addedAt, nullIfEmpty(entry.Notes), nullIfEmpty(entry.Department))
	if err = row.Scan(&entry.AddedAt); err != nil {
		if isUniqueViolation(err) {
			err = store.ErrPatientAlreadyQueued
		}
		return models.QueueEntry{}, err
	}

	if err = insertFeedEvent(ctx, tx, store.FeedInsert, entry); err != nil {
		return models.QueueEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue q
		LEFT JOIN patients p ON p.id = q.patient_id
		WHERE q.id = $1
	`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

// ListQueue returns every entry oldest first. Ordering follows the
// store-assigned added_at, not client clocks.
func (s *Store) ListQueue(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue q
		LEFT JOIN patients p ON p.id = q.patient_id
		ORDER BY q.added_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// UpdateStatus applies a transition with a compare-and-set keyed on the only
// valid source status, so two racing clients cannot both win.
func (s *Store) UpdateStatus(ctx context.Context, input store.UpdateStatusInput) (models.QueueEntry, error) {
	fromStatus, ok := store.TransitionSource(input.Status)
	if !ok {
		return models.QueueEntry{}, store.ErrInvalidTransition
	}
	transition, ok := store.NextTransition(fromStatus, input.Status)
	if !ok {
		return models.QueueEntry{}, store.ErrInvalidTransition
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		UPDATE queue SET status = $1
		WHERE id = $2 AND status = $3
		RETURNING id
	`
	args := []interface{}{input.Status, input.EntryID, fromStatus}
	switch {
	case transition.SetCheckedIn:
		query = `
			UPDATE queue SET status = $1, checked_in_at = $4, doctor_id = COALESCE($5, doctor_id)
			WHERE id = $2 AND status = $3
			RETURNING id
		`
		args = append(args, occurredAt, nullIfEmpty(input.DoctorID))
	case transition.SetCompleted:
		query = `
			UPDATE queue SET status = $1, completed_at = $4
			WHERE id = $2 AND status = $3
			RETURNING id
		`
		args = append(args, occurredAt)
	}

	var updatedID string
	row := tx.QueryRow(ctx, query, args...)
	if err = row.Scan(&updatedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.classifyFailedUpdate(ctx, tx, input)
		}
		return models.QueueEntry{}, err
	}

	entry, err := getEntryTx(ctx, tx, input.EntryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if err = insertFeedEvent(ctx, tx, store.FeedUpdate, entry); err != nil {
		return models.QueueEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

// classifyFailedUpdate turns a zero-row CAS update into the right sentinel:
// missing row, a lost race to the same target status, or a plain rule violation.
func (s *Store) classifyFailedUpdate(ctx context.Context, tx pgx.Tx, input store.UpdateStatusInput) error {
	var current string
	row := tx.QueryRow(ctx, `SELECT status FROM queue WHERE id = $1`, input.EntryID)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrEntryNotFound
		}
		return err
	}
	if current == input.Status {
		return store.ErrConflict
	}
	return store.ErrInvalidTransition
}

// RemoveEntry hard-deletes the entry. Removing an unknown id is a no-op so
// retries stay idempotent.
func (s *Store) RemoveEntry(ctx context.Context, entryID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	entry, err := getEntryTx(ctx, tx, entryID)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			err = tx.Commit(ctx)
			return err
		}
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM queue WHERE id = $1`, entryID); err != nil {
		return err
	}
	if err = insertFeedEvent(ctx, tx, store.FeedDelete, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreatePatient(ctx context.Context, fullName string) (models.Patient, error) {
	patient := models.Patient{ID: uuid.NewString(), FullName: fullName}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO patients (id, full_name) VALUES ($1, $2)
	`, patient.ID, patient.FullName)
	if err != nil {
		return models.Patient{}, err
	}
	return patient, nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]models.Department, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at
		FROM departments
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []models.Department
	for rows.Next() {
		var dept models.Department
		if err := rows.Scan(&dept.ID, &dept.Name, &dept.Description, &dept.CreatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, dept)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return departments, nil
}

func (s *Store) ListDoctors(ctx context.Context, departmentID string) ([]models.Doctor, error) {
	query := `
		SELECT id, COALESCE(full_name, ''), COALESCE(email, '')
		FROM profiles
		WHERE role = 'doctor'
		ORDER BY full_name ASC
	`
	args := []interface{}{}
	if departmentID != "" {
		query = `
			SELECT pr.id, COALESCE(pr.full_name, ''), COALESCE(pr.email, '')
			FROM doctor_departments dd
			JOIN profiles pr ON pr.id = dd.doctor_id
			WHERE dd.department_id = $1
			ORDER BY pr.full_name ASC
		`
		args = append(args, departmentID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []models.Doctor
	for rows.Next() {
		var doctor models.Doctor
		if err := rows.Scan(&doctor.ID, &doctor.FullName, &doctor.Email); err != nil {
			return nil, err
		}
		doctors = append(doctors, doctor)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doctors, nil
}

func getEntryTx(ctx context.Context, tx pgx.Tx, entryID string) (models.QueueEntry, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue q
		LEFT JOIN patients p ON p.id = q.patient_id
		WHERE q.id = $1
	`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry is the single place raw queue rows become typed entries.
func scanEntry(row rowScanner) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var checkedInNull sql.NullTime
	var completedNull sql.NullTime
	var notesNull sql.NullString
	var doctorIDNull sql.NullString
	var departmentNull sql.NullString
	if err := row.Scan(
		&entry.ID, &entry.PatientID, &entry.PatientName, &entry.Status, &entry.Priority,
		&entry.AddedAt, &checkedInNull, &completedNull, &notesNull, &doctorIDNull, &departmentNull,
	); err != nil {
		return models.QueueEntry{}, err
	}
	entry.CheckedInAt = nullTimePtr(checkedInNull)
	entry.CompletedAt = nullTimePtr(completedNull)
	entry.DoctorID = nullStringPtr(doctorIDNull)
	if notesNull.Valid {
		entry.Notes = notesNull.String
	}
	if departmentNull.Valid {
		entry.Department = departmentNull.String
	}
	return entry, nil
}

func insertFeedEvent(ctx context.Context, tx pgx.Tx, kind string, entry models.QueueEntry) error {
	payload, err := store.EncodeFeedEntry(entry)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO queue_events (event_id, kind, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), kind, payload, time.Now().UTC())
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(value string) interface{} {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

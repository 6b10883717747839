package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/KamogeloT/MediFlow/internal/models"
	"github.com/KamogeloT/MediFlow/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store store.Store
	auth  *Authenticator
}

type Options struct {
	Auth *Authenticator
}

func NewHandler(st store.Store, options Options) *Handler {
	return &Handler{store: st, auth: options.Auth}
}

type addQueueRequest struct {
	PatientID  string `json:"patient_id"`
	Priority   string `json:"priority"`
	Notes      string `json:"notes"`
	Department string `json:"department"`
}

type updateQueueRequest struct {
	Status   string `json:"status"`
	DoctorID string `json:"doctor_id"`
}

type createPatientRequest struct {
	FullName string `json:"full_name"`
}

type createEncounterRequest struct {
	Encounter struct {
		PatientID     string `json:"patient_id"`
		EncounterDate string `json:"encounter_date"`
		Doctor        string `json:"doctor"`
		Department    string `json:"department"`
		Notes         string `json:"notes"`
	} `json:"encounter"`
	Diagnoses     []models.Diagnosis    `json:"diagnoses"`
	Prescriptions []models.Prescription `json:"prescriptions"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/queue/", h.handleQueueEntry)
	mux.HandleFunc("/api/patients", h.handlePatients)
	mux.HandleFunc("/api/patient-history", h.handleCreateEncounter)
	mux.HandleFunc("/api/patient-history/", h.handlePatientHistory)
	mux.HandleFunc("/api/departments", h.handleDepartments)
	mux.HandleFunc("/api/doctors", h.handleDoctors)
	if h.auth != nil {
		return h.auth.Middleware(mux)
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListQueue(w, r)
	case http.MethodPost:
		h.handleAddToQueue(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleListQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListQueue(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleAddToQueue(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)

	var req addQueueRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Priority = strings.TrimSpace(req.Priority)
	req.Notes = strings.TrimSpace(req.Notes)
	req.Department = strings.TrimSpace(req.Department)

	if req.PatientID == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "patient_id is required")
		return
	}
	if !isValidUUID(req.PatientID) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "patient_id must be a UUID")
		return
	}
	if req.Priority != "" && !models.ValidPriority(req.Priority) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "priority must be one of low, normal, high, urgent")
		return
	}

	entry, err := h.store.AddEntry(r.Context(), store.AddEntryInput{
		PatientID:  req.PatientID,
		Priority:   req.Priority,
		Notes:      req.Notes,
		Department: req.Department,
		AddedAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleQueueEntry(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	entryID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/queue/"), "/")
	if entryID == "" || strings.Contains(entryID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(entryID) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "queue entry id must be a UUID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGetEntry(w, r, entryID)
	case http.MethodPatch:
		h.handleUpdateStatus(w, r, entryID)
	case http.MethodDelete:
		h.handleRemoveEntry(w, r, entryID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	entry, err := h.store.GetEntry(r.Context(), entryID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request, entryID string) {
	requestID := requestIDFromRequest(r)

	var req updateQueueRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Status = strings.TrimSpace(req.Status)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	if req.Status == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}
	if !models.ValidStatus(req.Status) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "status must be one of waiting, in-consultation, completed")
		return
	}
	if req.DoctorID != "" && !isValidUUID(req.DoctorID) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "doctor_id must be a UUID when provided")
		return
	}

	entry, err := h.store.UpdateStatus(r.Context(), store.UpdateStatusInput{
		EntryID:    entryID,
		Status:     req.Status,
		DoctorID:   req.DoctorID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleRemoveEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	if err := h.store.RemoveEntry(r.Context(), entryID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePatients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)

	var req createPatientRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	if req.FullName == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "full_name is required")
		return
	}

	patient, err := h.store.CreatePatient(r.Context(), req.FullName)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

func (h *Handler) handlePatientHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)
	if !h.requireRole(w, r, RoleStaff) {
		return
	}

	patientID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/patient-history/"), "/")
	if patientID == "" || strings.Contains(patientID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(patientID) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "patient id must be a UUID")
		return
	}

	filter := store.EncounterFilter{
		PatientID:  patientID,
		Doctor:     strings.TrimSpace(r.URL.Query().Get("doctor")),
		Department: strings.TrimSpace(r.URL.Query().Get("department")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := parseHistoryDate(raw)
		if err != nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "from must be an RFC3339 timestamp or YYYY-MM-DD date")
			return
		}
		filter.From = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := parseHistoryDate(raw)
		if err != nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "to must be an RFC3339 timestamp or YYYY-MM-DD date")
			return
		}
		filter.To = parsed
	}

	encounters, err := h.store.ListEncounters(r.Context(), filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	if encounters == nil {
		encounters = []models.Encounter{}
	}
	writeJSON(w, http.StatusOK, encounters)
}

func (h *Handler) handleCreateEncounter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)
	if !h.requireRole(w, r, RoleStaff) {
		return
	}

	var req createEncounterRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	patientID := strings.TrimSpace(req.Encounter.PatientID)
	if patientID == "" || !isValidUUID(patientID) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "encounter.patient_id must be a UUID")
		return
	}
	input := store.CreateEncounterInput{
		PatientID:     patientID,
		Doctor:        strings.TrimSpace(req.Encounter.Doctor),
		Department:    strings.TrimSpace(req.Encounter.Department),
		Notes:         strings.TrimSpace(req.Encounter.Notes),
		Diagnoses:     req.Diagnoses,
		Prescriptions: req.Prescriptions,
	}
	if raw := strings.TrimSpace(req.Encounter.EncounterDate); raw != "" {
		parsed, err := parseHistoryDate(raw)
		if err != nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "encounter.encounter_date must be an RFC3339 timestamp or YYYY-MM-DD date")
			return
		}
		input.EncounterDate = parsed
	}

	encounterID, err := h.store.CreateEncounter(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": encounterID})
}

func (h *Handler) handleDepartments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	departments, err := h.store.ListDepartments(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if departments == nil {
		departments = []models.Department{}
	}
	writeJSON(w, http.StatusOK, departments)
}

func (h *Handler) handleDoctors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)
	departmentID := strings.TrimSpace(r.URL.Query().Get("department_id"))
	if departmentID != "" && !isValidUUID(departmentID) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "department_id must be a UUID when provided")
		return
	}

	doctors, err := h.store.ListDoctors(r.Context(), departmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	if doctors == nil {
		doctors = []models.Doctor{}
	}
	writeJSON(w, http.StatusOK, doctors)
}

func parseHistoryDate(raw string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", raw)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

// mapError translates store sentinels into the response envelope. A repeated
// request for a status the entry already holds maps to conflict rather than
// invalid_transition: the server cannot tell a retry from a lost race, and
// both resolve the same way (re-fetch and move on).
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "queue entry not found"
	case errors.Is(err, store.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found", "patient not found"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "queue entry status does not allow this transition"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "queue entry was changed concurrently, re-fetch and retry"
	case errors.Is(err, store.ErrPatientAlreadyQueued):
		return http.StatusConflict, "already_queued", "patient already has an active queue entry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

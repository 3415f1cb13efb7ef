package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/application/command"
	"github.com/fato-hub/comportamento-hub/internal/application/query"
	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
	"github.com/fato-hub/comportamento-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type createOccurrenceRequest struct {
	StudentNumbers []int  `json:"studentNumbers"`
	Kind           string `json:"tipo"`
	FactDate       string `json:"dataFato"`
	Description    string `json:"descricao"`
}

type flagOccurrenceRequest struct {
	Sanction     string `json:"sancaoDisciplinar"`
	SanctionDays int    `json:"quantidadeDias"`
}

type updateTicketRequest struct {
	TicketNumber string `json:"numeroChamado"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.deps.HealthCheck(ctx); err != nil {
			s.log.Warn("health check failed", logger.Err(err))
			writeJSONError(w, http.StatusServiceUnavailable, "unhealthy", "Backing store unreachable")
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

// ══════════════════════════════════════════════════════════════════════════════
// OCCURRENCE WRITE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCreateOccurrence(w http.ResponseWriter, r *http.Request) {
	var req createOccurrenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	kind, err := occurrence.ParseKind(req.Kind)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_kind", "tipo must be positivo, negativo or neutro")
		return
	}

	factDate, err := timeutil.ParseDate(req.FactDate)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_date", "dataFato must be YYYY-MM-DD")
		return
	}

	result, err := s.deps.CreateOccurrence.Handle(r.Context(), command.CreateOccurrenceCommand{
		StudentNumbers: req.StudentNumbers,
		Kind:           kind,
		FactDate:       factDate,
		Description:    req.Description,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	dtos := make([]query.OccurrenceDTO, 0, len(result.Occurrences))
	for _, o := range result.Occurrences {
		dtos = append(dtos, query.NewOccurrenceDTO(o))
	}
	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"occurrences": dtos,
		"createdAt":   result.CreatedAt,
	})
}

func (s *Server) handleFlagOccurrence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req flagOccurrenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	sanction := occurrence.SanctionNone
	if req.Sanction != "" {
		var err error
		sanction, err = occurrence.ParseSanction(req.Sanction)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_sanction", "unknown sancaoDisciplinar value")
			return
		}
	}

	result, err := s.deps.FlagOccurrence.Handle(r.Context(), command.FlagOccurrenceCommand{
		OccurrenceID: id,
		Sanction:     sanction,
		SanctionDays: req.SanctionDays,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, query.NewOccurrenceDTO(result.Occurrence))
}

func (s *Server) handleConsolidateOccurrence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := s.deps.ConsolidateOccurrence.Handle(r.Context(), command.ConsolidateOccurrenceCommand{
		OccurrenceID: id,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	payload := map[string]interface{}{
		"occurrence":   query.NewOccurrenceDTO(result.Occurrence),
		"scoreDelta":   result.ScoreDelta,
		"scoreApplied": result.ScoreApplied,
	}
	if result.ScoreApplied {
		payload["newScore"] = result.NewScore
	}

	// A consolidation with a stranded score write is still a success for the
	// caller; 202 signals the score will land via reconciliation.
	status := http.StatusOK
	if !result.ScoreApplied {
		status = http.StatusAccepted
	}
	writeJSON(w, r, status, payload)
}

func (s *Server) handleRemoveOccurrence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := s.deps.OccurrenceLifecycle.HandleRemove(r.Context(), command.RemoveOccurrenceCommand{
		OccurrenceID: id,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, query.NewOccurrenceDTO(result.Occurrence))
}

func (s *Server) handleRestoreOccurrence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := s.deps.OccurrenceLifecycle.HandleRestore(r.Context(), command.RestoreOccurrenceCommand{
		OccurrenceID: id,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, query.NewOccurrenceDTO(result.Occurrence))
}

func (s *Server) handleEraseOccurrence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := s.deps.OccurrenceLifecycle.HandleErase(r.Context(), command.EraseOccurrenceCommand{
		OccurrenceID: id,
	}); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateTicketRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.deps.UpdateTicket.Handle(r.Context(), command.UpdateTicketCommand{
		OccurrenceID: id,
		TicketNumber: req.TicketNumber,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, query.NewOccurrenceDTO(result.Occurrence))
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListOccurrences(w http.ResponseWriter, r *http.Request) {
	q := query.ListOccurrencesQuery{
		StudentNumber:  queryInt(r, "numeroAluno", 0),
		Status:         occurrence.Status(r.URL.Query().Get("status")),
		Kind:           occurrence.Kind(r.URL.Query().Get("tipo")),
		IncludeRemoved: r.URL.Query().Get("incluirRemovidos") == "true",
		Limit:          queryInt(r, "limit", 0),
		Offset:         queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("de"); raw != "" {
		from, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_date", "de must be YYYY-MM-DD")
			return
		}
		q.FactFrom = from
	}
	if raw := r.URL.Query().Get("ate"); raw != "" {
		to, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_date", "ate must be YYYY-MM-DD")
			return
		}
		q.FactTo = to
	}

	result, err := s.deps.ListOccurrences.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleGetOccurrence(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetOccurrence.Handle(r.Context(), query.GetOccurrenceQuery{
		OccurrenceID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result.Occurrence)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ListStudents.Handle(r.Context(), query.ListStudentsQuery{})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleGetStudentScore(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("numero"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_student_number", "numero must be an integer")
		return
	}

	result, err := s.deps.GetStudentScore.Handle(r.Context(), query.GetStudentScoreQuery{
		StudentNumber: number,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result.Student)
}

func (s *Server) handleGetStudentReport(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("numero"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_student_number", "numero must be an integer")
		return
	}

	q := query.GetStudentReportQuery{StudentNumber: number}
	if raw := r.URL.Query().Get("de"); raw != "" {
		from, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_date", "de must be YYYY-MM-DD")
			return
		}
		q.PeriodStart = from
	}
	if raw := r.URL.Query().Get("ate"); raw != "" {
		to, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_date", "ate must be YYYY-MM-DD")
			return
		}
		q.PeriodEnd = to
	}

	result, err := s.deps.GetStudentReport.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result.Report)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError translates domain sentinels into HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrAlreadyProcessed):
		writeJSONError(w, http.StatusConflict, "already_consolidated", err.Error())
	case errors.Is(err, shared.ErrStateTransition), errors.Is(err, shared.ErrInvalidState):
		writeJSONError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, shared.ErrAlreadyExists):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidID),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrValueOutOfRange),
		errors.Is(err, shared.ErrEmptyValue):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, shared.ErrServiceUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, "timeout", "The operation timed out")
	default:
		s.log.Error("unhandled error",
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", requestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

const maxBodyBytes = 1 << 20 // 1 MB

func decodeBody(r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return errors.New("malformed JSON body")
	}
	return nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

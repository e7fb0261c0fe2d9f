package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"onereply/api/internal/export"
	"onereply/api/internal/intake"
	"onereply/api/internal/search"
	"onereply/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger.Named("http")}
}

func (s *HTTPServer) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(s.accessLog)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(s.corsOrigin),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
	}))

	router.Get("/api/health", s.handleHealth)
	router.Get("/api/ready", s.handleReady)

	router.Get("/api/departments", s.handleListDepartments)
	router.Post("/api/departments/suggest", s.handleSuggestDepartments)

	router.Route("/api/tickets", func(r chi.Router) {
		r.Get("/", s.handleListTickets)
		r.Post("/", s.handleCreateTicket)
		r.Route("/{ticketID}", func(r chi.Router) {
			r.Get("/", s.handleGetTicket)
			r.Delete("/", s.handleDeleteTicket)
			r.Post("/drafts", s.handleAddDraft)
			r.Post("/sections", s.handleAddManualSection)
			r.Get("/status", s.handleStatus)
			r.Get("/consolidated", s.handleConsolidated)
			r.Post("/assemble", s.handleAssemble)
			r.Get("/reply", s.handleReply)
			r.Get("/history", s.handleHistory)
			r.Get("/compare", s.handleCompare)
			r.Get("/events", s.handleEvents)
			r.Get("/export", s.handleExport)
		})
	})

	router.Route("/api/sections/{sectionID}", func(r chi.Router) {
		r.Patch("/", s.handleUpdateSection)
		r.Post("/approve", s.handleApprove)
		r.Post("/annotate", s.handleNoteAction(s.service.Annotate))
		r.Post("/omit", s.handleNoteAction(s.service.Omit))
		r.Post("/reject", s.handleNoteAction(s.service.Reject))
		r.Post("/lock", s.handleLock)
	})

	router.Get("/api/review/next", s.handleNextForReview)
	router.Get("/api/search", s.handleSearch)
	router.Post("/api/intake", s.handleIntake)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return router
}

func (s *HTTPServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if requestID := chimiddleware.GetReqID(r.Context()); requestID != "" {
			ww.Header().Set("X-Request-ID", requestID)
		}

		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(started)),
		)
	})
}

func corsOrigins(origin string) []string {
	var out []string
	for _, part := range strings.Split(origin, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleListDepartments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"departments": s.service.Departments()})
}

func (s *HTTPServer) handleSuggestDepartments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": s.service.SuggestDepartments(body.Subject, body.Body)})
}

func (s *HTTPServer) handleListTickets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.TicketFilter{
		Status:     store.TicketStatus(query.Get("status")),
		Department: query.Get("department"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer", nil)
			return
		}
		filter.Limit = limit
	}
	tickets, err := s.service.ListTickets(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []store.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (s *HTTPServer) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var body CreateTicketInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	ticket, err := s.service.CreateTicket(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *HTTPServer) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.TicketView(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTicket(r.Context(), chi.URLParam(r, "ticketID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleAddDraft(w http.ResponseWriter, r *http.Request) {
	var body DraftInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sections, err := s.service.AddDraft(r.Context(), chi.URLParam(r, "ticketID"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sections": sections})
}

func (s *HTTPServer) handleAddManualSection(w http.ResponseWriter, r *http.Request) {
	var body ManualSectionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	section, err := s.service.AddManualSection(r.Context(), chi.URLParam(r, "ticketID"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, section)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Status(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleConsolidated(w http.ResponseWriter, r *http.Request) {
	preview, err := s.service.Consolidated(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *HTTPServer) handleAssemble(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor string `json:"actor"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	reply, err := s.service.Assemble(r.Context(), chi.URLParam(r, "ticketID"), body.Actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *HTTPServer) handleReply(w http.ResponseWriter, r *http.Request) {
	reply, err := s.service.Reply(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	commits, err := s.service.History(r.Context(), chi.URLParam(r, "ticketID"), r.URL.Query().Get("department"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *HTTPServer) handleCompare(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	changes, err := s.service.Compare(r.Context(), chi.URLParam(r, "ticketID"), query.Get("from"), query.Get("to"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.service.Events(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []store.EventLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format, ok := export.ParseFormat(query.Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_FORMAT", "format must be html, pdf or docx", nil)
		return
	}
	version := query.Get("version")
	if version == "" {
		version = "latest"
	}
	result, err := s.service.Export(r.Context(), export.Request{
		TicketID: chi.URLParam(r, "ticketID"),
		Version:  version,
		Format:   format,
		Archive:  query.Get("archive") == "true",
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	if result.ArchiveKey != "" {
		w.Header().Set("X-Archive-Key", result.ArchiveKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	var body SectionPatch
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	section, err := s.service.UpdateSection(r.Context(), chi.URLParam(r, "sectionID"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, section)
}

type noteBody struct {
	Note  string `json:"note"`
	Actor string `json:"actor"`
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body noteBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Approve(r.Context(), chi.URLParam(r, "sectionID"), body.Actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleLock(w http.ResponseWriter, r *http.Request) {
	var body noteBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	section, err := s.service.Lock(r.Context(), chi.URLParam(r, "sectionID"), body.Actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, section)
}

type noteAction func(ctx context.Context, sectionID, note, actor string) (store.Section, error)

func (s *HTTPServer) handleNoteAction(action noteAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body noteBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		section, err := action(r.Context(), chi.URLParam(r, "sectionID"), body.Note, body.Actor)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, section)
	}
}

func (s *HTTPServer) handleNextForReview(w http.ResponseWriter, r *http.Request) {
	section, ok, err := s.service.NextForReview(r.Context(), r.URL.Query().Get("department"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"section": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"section": section})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "MISSING_QUERY", "q is required", nil)
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), search.Query{
		Text:             text,
		FilterType:       search.ResultType(query.Get("type")),
		FilterDepartment: query.Get("department"),
		Limit:            limit,
		Offset:           offset,
	}))
}

func (s *HTTPServer) handleIntake(w http.ResponseWriter, r *http.Request) {
	var msg intake.Message
	if err := decodeBody(r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Intake(r.Context(), msg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/SalesPipe/internal/flow"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// ConfigView is the public configuration returned by GET /api/config.
type ConfigView struct {
	PaymentLink string `json:"payment_link"`
	BookingURL  string `json:"booking_url"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("SalesPipe is running", nil))
}

// createSessionHandler handles POST /api/sessions.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := decodeBody(r, &req, false); err != nil {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.createSessionHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	resp, err := s.flow.StartSession(r.Context(), req.PreConviction)
	if err != nil {
		writeFlowError(w, "createSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(resp))
}

// listSessionsHandler handles GET /api/sessions.
func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.st.ListSessions()
	if err != nil {
		slog.Error("Server.listSessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

// getSessionHandler handles GET /api/sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.loadSession(w, "getSessionHandler", id)
	if !ok {
		return
	}
	msgs, err := s.st.ListMessages(id)
	if err != nil {
		slog.Error("Server.getSessionHandler: failed to list messages", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load messages"))
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.SessionDetail{Session: *sess, Messages: msgs}))
}

// sendMessageHandler handles POST /api/sessions/{id}/messages.
func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req models.SendMessageRequest
	if err := decodeBody(r, &req, false); err != nil {
		slog.Warn("Server.sendMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	result, err := s.flow.ProcessTurn(r.Context(), id, req.Content)
	if err != nil {
		writeFlowError(w, "sendMessageHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// endSessionHandler handles POST /api/sessions/{id}/end. The body is optional.
func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req models.EndSessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		slog.Warn("Server.endSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	sess, err := s.flow.EndSession(r.Context(), id, req)
	if err != nil {
		writeFlowError(w, "endSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session ended", sess))
}

// thoughtsHandler handles GET /api/sessions/{id}/thoughts.
func (s *Server) thoughtsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.loadSession(w, "thoughtsHandler", id); !ok {
		return
	}
	logs, err := s.st.ListThoughtLogs(id)
	if err != nil {
		slog.Error("Server.thoughtsHandler: failed to list thought logs", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load thought logs"))
		return
	}
	if logs == nil {
		logs = []models.ThoughtLog{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(logs))
}

// metricsHandler handles GET /api/metrics.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.st.ListSessions()
	if err != nil {
		slog.Error("Server.metricsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute metrics"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.ComputeMetrics(sessions)))
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(ConfigView{
		PaymentLink: s.opts.PaymentLink,
		BookingURL:  s.opts.BookingURL,
	}))
}

// loadSession writes a 404 or 500 and returns false when the session cannot be served.
func (s *Server) loadSession(w http.ResponseWriter, op, id string) (*models.Session, bool) {
	sess, err := s.st.GetSession(id)
	if err != nil {
		slog.Error("Server."+op+": failed to load session", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return nil, false
	}
	if sess == nil {
		writeFlowError(w, op, flow.ErrSessionNotFound)
		return nil, false
	}
	return sess, true
}

// decodeBody decodes a JSON body into dst. With optional set an empty body is accepted.
func decodeBody(r *http.Request, dst interface{}, optional bool) error {
	if r.Body == nil {
		if optional {
			return nil
		}
		return io.EOF
	}
	defer r.Body.Close()
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

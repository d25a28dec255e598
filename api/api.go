/*
Package api provides the HTTP interface of the daemon: read the area info, inject fragments, look up received
messages and reset the duplicate detection.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/gsm"
	"github.com/ftl/cellbroadcast/handler"
	"github.com/ftl/cellbroadcast/notify"
	"github.com/ftl/cellbroadcast/store"
)

// maxFragmentSize limits the body of a fragment request, a hex encoded UMTS PDU with 15 pages fits easily.
const maxFragmentSize = 8192

// Service is the message handling behind the API.
type Service interface {
	SubmitFragment(ctx context.Context, slot int, pdu []byte) (handler.Decision, error)
	AreaInfo(slot int) string
	HasSlot(slot int) bool
	Slots() []int
	ResetDuplicateDetection(t time.Time)
}

// Records gives access to the received messages.
type Records interface {
	Get(ctx context.Context, id string) (store.Record, error)
}

type server struct {
	service Service
	records Records
	now     func() time.Time
	log     zerolog.Logger
}

// NewHandler returns the HTTP handler with all routes.
func NewHandler(service Service, records Records, log zerolog.Logger) http.Handler {
	s := &server{
		service: service,
		records: records,
		now:     time.Now,
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Get("/slots", s.listSlots)
	r.Route("/slots/{slot}", func(r chi.Router) {
		r.Use(s.slotParam)
		r.Get("/area-info", s.getAreaInfo)
		r.Post("/fragments", s.postFragment)
	})
	r.Get("/messages/{id}", s.getMessage)
	r.Post("/dedup/reset", s.resetDuplicateDetection)

	return r
}

type slotKey struct{}

func (s *server) slotParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid slot")
			return
		}
		if !s.service.HasSlot(slot) {
			writeError(w, http.StatusNotFound, "unknown slot")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), slotKey{}, slot)))
	})
}

func slotFrom(r *http.Request) int {
	slot, _ := r.Context().Value(slotKey{}).(int)
	return slot
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type slotInfo struct {
	Slot     int    `json:"slot"`
	AreaInfo string `json:"area_info"`
}

func (s *server) listSlots(w http.ResponseWriter, _ *http.Request) {
	slots := s.service.Slots()
	result := make([]slotInfo, 0, len(slots))
	for _, slot := range slots {
		result = append(result, slotInfo{Slot: slot, AreaInfo: s.service.AreaInfo(slot)})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) getAreaInfo(w http.ResponseWriter, r *http.Request) {
	slot := slotFrom(r)
	writeJSON(w, http.StatusOK, slotInfo{Slot: slot, AreaInfo: s.service.AreaInfo(slot)})
}

// decisionResponse is the JSON representation of a handler.Decision.
type decisionResponse struct {
	Outcome string          `json:"outcome"`
	Reason  string          `json:"reason"`
	Error   string          `json:"error,omitempty"`
	Message *notify.Message `json:"message,omitempty"`
}

func (s *server) postFragment(w http.ResponseWriter, r *http.Request) {
	slot := slotFrom(r)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFragmentSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) > maxFragmentSize {
		writeError(w, http.StatusRequestEntityTooLarge, "fragment too large")
		return
	}
	pdu, err := gsm.HexToBinary(string(body))
	if err != nil || len(pdu) == 0 {
		writeError(w, http.StatusBadRequest, "the fragment must be a hex encoded PDU")
		return
	}

	decision, err := s.service.SubmitFragment(r.Context(), slot, pdu)
	switch {
	case errors.Is(err, handler.ErrUnknownSlot):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	response := decisionResponse{
		Outcome: decision.Outcome.String(),
		Reason:  decision.Reason.String(),
	}
	if decision.Err != nil {
		response.Error = decision.Err.Error()
	}
	if decision.Message != nil {
		message, err := notify.NewMessage(slot, *decision.Message)
		if err != nil {
			s.log.Warn().Err(err).Msg("cannot encode message")
		} else {
			response.Message = &message
		}
	}
	writeJSON(w, http.StatusOK, response)
}

type recordResponse struct {
	ID        string         `json:"id"`
	Broadcast bool           `json:"broadcast"`
	Message   notify.Message `json:"message"`
}

func (s *server) getMessage(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusNotFound, "no message history")
		return
	}
	record, err := s.records.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	message, err := notify.NewMessage(record.Slot, record.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{ID: record.ID, Broadcast: record.Broadcast, Message: message})
}

func (s *server) resetDuplicateDetection(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	s.service.ResetDuplicateDetection(now)
	s.log.Info().Time("at", now).Msg("duplicate detection reset")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Package httpapi exposes the bot's inspection surface: session
// listings and stored transcripts. It never sits on the audio path.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"call-transcription-bot/internal/session"
	"call-transcription-bot/internal/store"
	"call-transcription-bot/internal/transcript"
)

// TranscriptReader is the read side of the snapshot store.
type TranscriptReader interface {
	GetSnapshot(ctx context.Context, sessionID string) (transcript.Snapshot, error)
	GetSummary(ctx context.Context, sessionID string) (transcript.Summary, error)
	History(ctx context.Context, sessionID string, limit int) ([]transcript.Snapshot, error)
}

// NewRouter constructs the HTTP router. reader may be nil when the
// store is not configured; the transcript endpoints then answer 503.
func NewRouter(mgr *session.Manager, reader TranscriptReader) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, mgr.Statuses())
		})

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/transcript", func(w http.ResponseWriter, req *http.Request) {
				if reader == nil {
					writeError(w, http.StatusServiceUnavailable, "store not configured")
					return
				}
				id := chi.URLParam(req, "sessionID")
				snap, err := reader.GetSnapshot(req.Context(), id)
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "no transcript for session")
					return
				}
				if err != nil {
					log.Error().Err(err).Str("sessionId", id).Msg("Transcript read failed")
					writeError(w, http.StatusInternalServerError, "transcript read failed")
					return
				}
				writeJSON(w, http.StatusOK, snap)
			})

			r.Get("/summary", func(w http.ResponseWriter, req *http.Request) {
				if reader == nil {
					writeError(w, http.StatusServiceUnavailable, "store not configured")
					return
				}
				id := chi.URLParam(req, "sessionID")
				sum, err := reader.GetSummary(req.Context(), id)
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "no summary for session")
					return
				}
				if err != nil {
					log.Error().Err(err).Str("sessionId", id).Msg("Summary read failed")
					writeError(w, http.StatusInternalServerError, "summary read failed")
					return
				}
				writeJSON(w, http.StatusOK, sum)
			})

			r.Get("/history", func(w http.ResponseWriter, req *http.Request) {
				if reader == nil {
					writeError(w, http.StatusServiceUnavailable, "store not configured")
					return
				}
				id := chi.URLParam(req, "sessionID")
				limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
				hist, err := reader.History(req.Context(), id, limit)
				if err != nil {
					log.Error().Err(err).Str("sessionId", id).Msg("History read failed")
					writeError(w, http.StatusInternalServerError, "history read failed")
					return
				}
				writeJSON(w, http.StatusOK, hist)
			})

			r.Post("/reconnect", func(w http.ResponseWriter, req *http.Request) {
				id := chi.URLParam(req, "sessionID")
				s, ok := mgr.Get(id)
				if !ok {
					writeError(w, http.StatusNotFound, "no such session")
					return
				}
				if err := s.Reconnect(req.Context()); err != nil {
					writeError(w, http.StatusBadGateway, err.Error())
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{
					"sessionId": id,
					"connState": s.ConnState().String(),
				})
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/moodtunes/backend/internal/audio"
	"github.com/moodtunes/backend/internal/logging"
	"github.com/moodtunes/backend/internal/metrics"
	"github.com/moodtunes/backend/internal/middleware"
	"github.com/moodtunes/backend/internal/models"
	"github.com/moodtunes/backend/internal/mood"
	"github.com/moodtunes/backend/internal/services"
	"github.com/moodtunes/backend/internal/uploads"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before the rest spills to temporary files.
const multipartMemory = 1 << 20

// PlaylistBuilder creates a playlist on the user's behalf.
type PlaylistBuilder interface {
	BuildPlaylist(ctx context.Context, accessToken string, req services.PlaylistRequest) (*services.Playlist, error)
}

// Publisher fans a result event out to a session's push connections.
type Publisher interface {
	Publish(sessionID string, event any) (int, error)
}

// UploadStore keeps an uploaded file on disk until it is released.
type UploadStore interface {
	Save(r io.Reader, originalName string) (*uploads.File, error)
}

// MoodHandler serves the prompt and audio mood endpoints.
type MoodHandler struct {
	playlists      PlaylistBuilder
	prober         audio.Prober
	uploads        UploadStore
	publisher      Publisher
	metrics        *metrics.Metrics
	timeout        time.Duration
	maxUploadBytes int64
}

// MoodHandlerOptions bounds the work done per request.
type MoodHandlerOptions struct {
	Timeout        time.Duration
	MaxUploadBytes int64
}

// NewMoodHandler creates a MoodHandler.
func NewMoodHandler(playlists PlaylistBuilder, prober audio.Prober, store UploadStore, publisher Publisher, m *metrics.Metrics, opts MoodHandlerOptions) *MoodHandler {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	return &MoodHandler{
		playlists:      playlists,
		prober:         prober,
		uploads:        store,
		publisher:      publisher,
		metrics:        m,
		timeout:        opts.Timeout,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

// Suggest classifies a free-text prompt, builds a playlist for the mood and
// publishes the result to the request's session.
func (h *MoodHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req models.SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	detected, language := mood.ClassifyPrompt(req.Prompt)

	playlist, err := h.playlists.BuildPlaylist(ctx, claims.AccessToken, services.PlaylistRequest{
		Query:       fmt.Sprintf("%s %s songs", detected, language),
		Name:        fmt.Sprintf("Mood: %s (%s)", detected, language),
		Description: `Generated for "` + req.Prompt + `"`,
	})
	if err != nil {
		h.metrics.UpstreamFailure("suggest")
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "Failed to fetch song suggestions", err)
		return
	}

	result := models.MoodResult{
		Mood:        detected,
		Language:    language,
		PlaylistID:  playlist.ID,
		PlaylistURL: playlist.URL,
	}
	h.publish(ctx, req.SessionID, models.MessageTypeSuggestion, result)
	h.metrics.PlaylistCreated("prompt", detected, time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, result)
}

// AnalyzeAudio stores the uploaded audio for the duration of the request,
// classifies it from its duration and bitrate, builds a playlist and
// publishes the result.
func (h *MoodHandler) AnalyzeAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No audio file uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio file uploaded")
		return
	}
	defer file.Close()

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	upload, err := h.uploads.Save(file, header.Filename)
	if err != nil {
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "Failed to process audio", err)
		return
	}
	defer upload.Release()

	meta, err := h.prober.Probe(ctx, upload.Path)
	if err != nil {
		h.metrics.UpstreamFailure("probe")
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "Failed to process audio", err)
		return
	}

	detected := mood.ClassifyAudio(meta)

	playlist, err := h.playlists.BuildPlaylist(ctx, claims.AccessToken, services.PlaylistRequest{
		Query:       fmt.Sprintf("%s %s songs", detected, mood.LanguageEnglish),
		Name:        fmt.Sprintf("Audio Mood: %s", detected),
		Description: "Generated from audio analysis",
	})
	if err != nil {
		h.metrics.UpstreamFailure("analyze_audio")
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "Failed to process audio", err)
		return
	}

	result := models.MoodResult{
		Mood:        detected,
		PlaylistID:  playlist.ID,
		PlaylistURL: playlist.URL,
	}
	h.publish(ctx, r.FormValue("sessionId"), models.MessageTypeAudio, result)
	h.metrics.PlaylistCreated("audio", detected, time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, result)
}

// publish sends the result to the session. A failure here never fails the
// HTTP request; the caller already has its answer.
func (h *MoodHandler) publish(ctx context.Context, sessionID, eventType string, result models.MoodResult) {
	delivered, err := h.publisher.Publish(sessionID, models.ResultEvent{Type: eventType, Data: result})
	if err != nil {
		logging.LogErrorWithStatus(ctx, http.StatusOK, "failed to publish result event", logging.WrapError(err, "publish"))
		return
	}
	fields := append(logging.RequestFields(ctx),
		slog.String("event_type", eventType),
		slog.Int("delivered", delivered))
	slog.DebugContext(ctx, "result event published", fields...)
}

// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adiadia/agent-progress/internal/auth"
	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/adiadia/agent-progress/internal/metrics"
	"github.com/adiadia/agent-progress/internal/orchestration"
	"github.com/adiadia/agent-progress/internal/thread"
	"github.com/adiadia/agent-progress/internal/transport/middleware"
	"github.com/adiadia/agent-progress/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const headerIdempotencyKey = "Idempotency-Key"

type createThreadRequest struct {
	TemplateName string     `json:"template_name"`
	Steps        []stepSpec `json:"steps"`
	TotalSteps   int        `json:"total_steps"`
	WebhookURL   string     `json:"webhook_url"`
}

type stepSpec struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Dependencies []string `json:"dependencies"`
}

type appendEventsRequest struct {
	Events []domain.StepMessage `json:"events"`
}

type createAPIKeyRequest struct {
	Name              string `json:"name"`
	MaxActiveThreads  int    `json:"max_active_threads"`
	MaxRequestsPerMin int    `json:"max_requests_per_min"`
}

type Deps struct {
	ThreadRepo     ThreadManager
	StepRepo       StepLister
	EventRepo      EventStreamer
	ProgressRepo   ProgressReader
	APIKeyAdmin    APIKeyManager
	Logger         *slog.Logger
	APIKeyResolver APIKeyResolver
	Health         HealthChecker
	AdminToken     string
	Version        string
	Commit         string
	BuildDate      string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- API KEY LIFECYCLE (ADMIN) ----------------

	if deps.APIKeyAdmin != nil {
		r.Route("/api-keys", func(admin chi.Router) {
			admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

			admin.Post("/", func(w http.ResponseWriter, r *http.Request) {
				reqBody, err := decodeCreateAPIKeyRequest(r)
				if err != nil {
					http.Error(w, "invalid request body", http.StatusBadRequest)
					return
				}

				created, err := deps.APIKeyAdmin.CreateAPIKey(r.Context(), domain.CreateAPIKeyParams{
					Name:              reqBody.Name,
					MaxActiveThreads:  reqBody.MaxActiveThreads,
					MaxRequestsPerMin: reqBody.MaxRequestsPerMin,
				})
				if err != nil {
					if errors.Is(err, domain.ErrInvalidAPIKeyName) {
						http.Error(w, "invalid api key name", http.StatusBadRequest)
						return
					}
					logger.Error("create api key failed", "error", err)
					http.Error(w, "failed to create api key", http.StatusInternalServerError)
					return
				}

				writeJSON(w, http.StatusOK, map[string]string{
					"api_key_id": created.ID.String(),
					"token":      created.Token,
				})
			})

			admin.Get("/", func(w http.ResponseWriter, r *http.Request) {
				keys, err := deps.APIKeyAdmin.ListAPIKeys(r.Context())
				if err != nil {
					logger.Error("list api keys failed", "error", err)
					http.Error(w, "failed to list api keys", http.StatusInternalServerError)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"api_keys": keys,
				})
			})

			admin.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
				id, err := uuid.Parse(chi.URLParam(r, "id"))
				if err != nil {
					http.Error(w, "invalid api key ID", http.StatusBadRequest)
					return
				}

				if err := deps.APIKeyAdmin.RevokeAPIKey(r.Context(), id); err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						http.Error(w, "api key not found", http.StatusNotFound)
						return
					}
					logger.Error("delete api key failed", "api_key_id", id, "error", err)
					http.Error(w, "failed to delete api key", http.StatusInternalServerError)
					return
				}

				w.WriteHeader(http.StatusNoContent)
			})
		})
	}

	// ---------------- THREADS (API KEY AUTH) ----------------

	r.Group(func(r chi.Router) {
		if deps.APIKeyResolver != nil {
			r.Use(middleware.APITokenAuth(deps.APIKeyResolver, logger))
		}

		// ---------------- CREATE THREAD ----------------

		r.Post("/threads", func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey)); key != "" {
				ctx = auth.WithIdempotencyKey(ctx, key)
			}

			reqBody, err := decodeCreateThreadRequest(r)
			if err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			params := domain.CreateThreadParams{
				TemplateName: reqBody.TemplateName,
				TotalSteps:   reqBody.TotalSteps,
				WebhookURL:   reqBody.WebhookURL,
			}
			for _, spec := range reqBody.Steps {
				params.Steps = append(params.Steps, orchestration.NewStep(
					spec.ID,
					spec.Name,
					domain.StepKind(spec.Kind),
					spec.Dependencies,
				))
			}

			if errs := validation.ValidateCreateThread(params); len(errs) > 0 {
				writeValidationErrors(w, errs)
				return
			}
			if len(params.Steps) > 0 {
				if err := orchestration.ValidateDependencies(params.Steps); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
			}

			threadID, err := deps.ThreadRepo.CreateThread(ctx, params)
			if err != nil {
				if errors.Is(err, domain.ErrMaxActiveThreadsExceeded) {
					if w.Header().Get("Retry-After") == "" {
						w.Header().Set("Retry-After", "1")
					}
					http.Error(w, "max active threads exceeded", http.StatusTooManyRequests)
					return
				}
				if errors.Is(err, domain.ErrPlanTemplateNotFound) {
					http.Error(w, "plan template not found", http.StatusBadRequest)
					return
				}

				logger.Error("create thread failed", "error", err)
				http.Error(w, "failed to create thread", http.StatusInternalServerError)
				return
			}

			logger.Info("thread created via API", "thread_id", threadID)

			writeJSON(w, http.StatusOK, map[string]string{
				"thread_id": threadID.String(),
			})
		})

		// ---------------- GET THREAD ----------------

		r.Get("/threads/{id}", func(w http.ResponseWriter, r *http.Request) {
			threadID, ok := threadIDParam(w, r)
			if !ok {
				return
			}

			record, err := deps.ThreadRepo.GetThread(r.Context(), threadID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					logger.Warn("thread not found", "thread_id", threadID)
					http.Error(w, "thread not found", http.StatusNotFound)
					return
				}

				logger.Error("get thread failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to get thread", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, record)
		})

		// ---------------- THREAD STATUS (LIVE) ----------------

		r.Get("/threads/{id}/status", func(w http.ResponseWriter, r *http.Request) {
			threadID, ok := threadIDParam(w, r)
			if !ok {
				return
			}

			// Ownership gate; the analyzer itself never touches storage.
			if _, err := deps.ThreadRepo.GetThread(r.Context(), threadID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					logger.Warn("thread not found", "thread_id", threadID)
					http.Error(w, "thread not found", http.StatusNotFound)
					return
				}
				logger.Error("get thread failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to get thread status", http.StatusInternalServerError)
				return
			}

			window, err := deps.EventRepo.Window(r.Context(), threadID)
			if err != nil {
				logger.Error("load event window failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to get thread status", http.StatusInternalServerError)
				return
			}

			start := time.Now()
			derived := thread.Analyze(window)
			metrics.ObserveAnalyzeDuration(time.Since(start))

			writeJSON(w, http.StatusOK, struct {
				ThreadID string `json:"thread_id"`
				domain.ThreadExecutionStatus
			}{
				ThreadID:              threadID.String(),
				ThreadExecutionStatus: derived,
			})
		})

		// ---------------- THREAD SUMMARY ----------------

		r.Get("/threads/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
			threadID, ok := threadIDParam(w, r)
			if !ok {
				return
			}

			steps, err := deps.StepRepo.ListSteps(r.Context(), threadID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					logger.Warn("thread not found", "thread_id", threadID)
					http.Error(w, "thread not found", http.StatusNotFound)
					return
				}

				logger.Error("summarize thread failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to summarize thread", http.StatusInternalServerError)
				return
			}

			summary := orchestration.Summarize(steps)
			summary.ThreadID = threadID

			writeJSON(w, http.StatusOK, summary)
		})

		// ---------------- LIST STEPS ----------------

		r.Get("/threads/{id}/steps", func(w http.ResponseWriter, r *http.Request) {
			threadID, ok := threadIDParam(w, r)
			if !ok {
				return
			}

			steps, err := deps.StepRepo.ListSteps(r.Context(), threadID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					logger.Warn("thread not found", "thread_id", threadID)
					http.Error(w, "thread not found", http.StatusNotFound)
					return
				}

				logger.Error("list steps failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to list steps", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, struct {
				ThreadID string        `json:"thread_id"`
				Steps    []domain.Step `json:"steps"`
			}{
				ThreadID: threadID.String(),
				Steps:    steps,
			})
		})

		// ---------------- EXECUTABLE FRONTIER ----------------

		r.Get("/threads/{id}/steps/next", func(w http.ResponseWriter, r *http.Request) {
			threadID, ok := threadIDParam(w, r)
			if !ok {
				return
			}

			steps, err := deps.StepRepo.NextSteps(r.Context(), threadID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					logger.Warn("thread not found", "thread_id", threadID)
					http.Error(w, "thread not found", http.StatusNotFound)
					return
				}

				logger.Error("next steps failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to resolve next steps", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, struct {
				ThreadID string        `json:"thread_id"`
				Steps    []domain.Step `json:"steps"`
			}{
				ThreadID: threadID.String(),
				Steps:    steps,
			})
		})

		// ---------------- THREAD PROGRESS (CSI) ----------------

		r.Get("/threads/{id}/progress", func(w http.ResponseWriter, r *http.Request) {
			threadID, ok := threadIDParam(w, r)
			if !ok {
				return
			}

			csi, err := deps.ProgressRepo.GetProgress(r.Context(), threadID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					logger.Warn("thread not found", "thread_id", threadID)
					http.Error(w, "thread not found", http.StatusNotFound)
					return
				}

				logger.Error("get progress failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to get progress", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, struct {
				ThreadID string `json:"thread_id"`
				domain.CurrentStepInfo
			}{
				ThreadID:        threadID.String(),
				CurrentStepInfo: csi,
			})
		})

		// ---------------- APPEND EVENTS ----------------

		r.Post("/threads/{id}/events", func(w http.ResponseWriter, r *http.Request) {
			threadID, ok := threadIDParam(w, r)
			if !ok {
				return
			}

			reqBody, err := decodeAppendEventsRequest(r)
			if err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			if len(reqBody.Events) == 0 {
				http.Error(w, "no events to append", http.StatusBadRequest)
				return
			}

			var errs validation.ValidationErrors
			for i, msg := range reqBody.Events {
				for _, ve := range validation.ValidateMessage(msg) {
					ve.Field = fmt.Sprintf("events[%d].%s", i, ve.Field)
					errs = append(errs, ve)
				}
			}
			if len(errs) > 0 {
				writeValidationErrors(w, errs)
				return
			}

			appended, err := deps.EventRepo.AppendEvents(r.Context(), threadID, reqBody.Events)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					logger.Warn("thread not found", "thread_id", threadID)
					http.Error(w, "thread not found", http.StatusNotFound)
					return
				}

				logger.Error("append events failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to append events", http.StatusInternalServerError)
				return
			}

			for _, ev := range appended {
				metrics.IncStepEvent(string(ev.Status))
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"thread_id": threadID.String(),
				"appended":  len(appended),
				"last_seq":  appended[len(appended)-1].Seq,
			})
		})

		// ---------------- STREAM EVENTS (SSE) ----------------

		r.Get("/threads/{id}/events", func(w http.ResponseWriter, r *http.Request) {
			threadID, ok := threadIDParam(w, r)
			if !ok {
				return
			}

			// Enforce tenant ownership and hide cross-tenant existence.
			if _, err := deps.ThreadRepo.GetThread(r.Context(), threadID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					http.Error(w, "thread not found", http.StatusNotFound)
					return
				}
				logger.Error("sse get thread failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to stream events", http.StatusInternalServerError)
				return
			}

			if deps.EventRepo == nil {
				logger.Error("sse events repository is not configured")
				http.Error(w, "failed to stream events", http.StatusInternalServerError)
				return
			}

			since := strings.TrimSpace(r.URL.Query().Get("since_id"))
			cursor, err := resolveEventsCursor(r.Context(), deps.EventRepo, threadID, since)
			if err != nil {
				if errors.Is(err, errInvalidSinceID) {
					http.Error(w, "invalid since_id", http.StatusBadRequest)
					return
				}
				logger.Error("resolve events cursor failed",
					"thread_id", threadID,
					"since_id", since,
					"error", err,
				)
				http.Error(w, "failed to stream events", http.StatusInternalServerError)
				return
			}

			flusher, ok := w.(http.Flusher)
			if !ok {
				http.Error(w, "streaming unsupported", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			flusher.Flush()

			writeEvents := func() error {
				events, err := deps.EventRepo.ListEventsAfter(r.Context(), threadID, cursor)
				if err != nil {
					return err
				}

				for _, ev := range events {
					payload, err := json.Marshal(ev)
					if err != nil {
						return err
					}
					if _, err := fmt.Fprintf(w, "event: step_update\ndata: %s\n\n", payload); err != nil {
						return err
					}
					flusher.Flush()
					cursor = ev.Seq
				}

				return nil
			}

			if err := writeEvents(); err != nil {
				logger.Error("sse initial write failed", "thread_id", threadID, "error", err)
				return
			}

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()

			for {
				select {
				case <-r.Context().Done():
					return
				case <-ticker.C:
					if err := writeEvents(); err != nil {
						logger.Error("sse write failed", "thread_id", threadID, "error", err)
						return
					}
				}
			}
		})

		// ---------------- CANCEL THREAD ----------------

		r.Post("/threads/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
			threadID, ok := threadIDParam(w, r)
			if !ok {
				return
			}

			if err := deps.ThreadRepo.CancelThread(r.Context(), threadID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					logger.Warn("thread not found", "thread_id", threadID)
					http.Error(w, "thread not found", http.StatusNotFound)
					return
				}

				logger.Error("cancel thread failed", "thread_id", threadID, "error", err)
				http.Error(w, "failed to cancel thread", http.StatusInternalServerError)
				return
			}

			logger.Info("thread cancelled via API", "thread_id", threadID)

			writeJSON(w, http.StatusOK, map[string]string{
				"id":     threadID.String(),
				"status": string(domain.ThreadCancelled),
			})
		})
	})

	return r
}

func threadIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	threadID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid thread ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return threadID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidationErrors(w http.ResponseWriter, errs validation.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"errors": errs,
	})
}

func decodeCreateThreadRequest(r *http.Request) (createThreadRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return createThreadRequest{}, nil
	}

	var req createThreadRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return createThreadRequest{}, nil
		}
		return createThreadRequest{}, err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return createThreadRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	req.TemplateName = strings.TrimSpace(req.TemplateName)
	req.WebhookURL = strings.TrimSpace(req.WebhookURL)
	return req, nil
}

func decodeAppendEventsRequest(r *http.Request) (appendEventsRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return appendEventsRequest{}, nil
	}

	var req appendEventsRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return appendEventsRequest{}, nil
		}
		return appendEventsRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return appendEventsRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	return req, nil
}

func decodeCreateAPIKeyRequest(r *http.Request) (createAPIKeyRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return createAPIKeyRequest{}, domain.ErrInvalidAPIKeyName
	}

	var req createAPIKeyRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return createAPIKeyRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return createAPIKeyRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return createAPIKeyRequest{}, domain.ErrInvalidAPIKeyName
	}

	return req, nil
}

var errInvalidSinceID = errors.New("invalid since_id")

func resolveEventsCursor(
	ctx context.Context,
	eventRepo EventStreamer,
	threadID uuid.UUID,
	since string,
) (int64, error) {
	if since == "" {
		return 0, nil
	}

	if seq, err := strconv.ParseInt(since, 10, 64); err == nil {
		if seq < 0 {
			return 0, errInvalidSinceID
		}
		return seq, nil
	}

	eventID, err := uuid.Parse(since)
	if err != nil {
		return 0, errInvalidSinceID
	}

	seq, err := eventRepo.ResolveCursorByEventID(ctx, threadID, eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errInvalidSinceID
		}
		return 0, err
	}

	return seq, nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}

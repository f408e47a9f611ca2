// Package server exposes the skill webhook over HTTP and delivers
// asynchronous results back to the platform.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drlike/asthmabot/internal/dialog"
	"github.com/drlike/asthmabot/internal/kakao"
	"github.com/drlike/asthmabot/internal/queue"
	"github.com/drlike/asthmabot/pkg/observability"
	"github.com/drlike/asthmabot/pkg/security"
)

// User-facing error strings for the webhook surface.
const (
	badRequestMessage  = "잘못된 요청입니다."
	systemErrorMessage = "시스템에 오류가 발생했어요. 잠시 후 다시 시도해주세요."
	rateLimitMessage   = "요청이 너무 많습니다. 잠시 후 다시 시도해주세요."
)

// Options configures the webhook server.
type Options struct {
	Port    int
	Machine *dialog.Machine
	// Limiter is optional; nil disables rate limiting.
	Limiter *security.RateLimiter
	// Checker is optional; nil disables the health routes.
	Checker *observability.HealthChecker
}

// Server is the skill webhook HTTP server.
type Server struct {
	machine    *dialog.Machine
	limiter    *security.RateLimiter
	checker    *observability.HealthChecker
	httpServer *http.Server
}

// New builds the server and its router.
func New(opts Options) *Server {
	s := &Server{
		machine: opts.Machine,
		limiter: opts.Limiter,
		checker: opts.Checker,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestMetrics)
	r.Use(s.recoverToApology)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "Asthma Consultation Bot is running!")
	})
	r.Post("/skill", s.handleSkill)
	r.Post(queue.CallbackPath, s.handleAnalysisCallback)

	r.Handle("/metrics", observability.MetricsHandler())
	if s.checker != nil {
		r.Get("/health", s.checker.Handler())
		r.Get("/health/live", s.checker.LivenessHandler())
		r.Get("/health/ready", s.checker.ReadinessHandler())
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Printf("[Server] listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleSkill serves the inbound webhook. Every outcome, including
// client errors, is wrapped in the platform envelope so the user sees
// a chat bubble rather than a broken turn.
func (s *Server) handleSkill(w http.ResponseWriter, r *http.Request) {
	var req kakao.SkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, kakao.SimpleText(badRequestMessage))
		return
	}

	userKey := req.UserKey()
	if userKey == "" {
		writeEnvelope(w, http.StatusBadRequest, kakao.SimpleText(badRequestMessage))
		return
	}

	if s.limiter != nil && !s.limiter.Allow(userKey) {
		log.Printf("[Rate Limited] user: %s", userKey)
		writeEnvelope(w, http.StatusTooManyRequests, kakao.SimpleText(rateLimitMessage))
		return
	}

	if imageURL := req.ImageURL(); imageURL != "" {
		resp, err := s.machine.HandleImage(r.Context(), userKey, imageURL, req.CallbackURL())
		if err != nil {
			log.Printf("[Skill Error] user: %s: %v", userKey, err)
			writeEnvelope(w, http.StatusInternalServerError, kakao.SimpleText(systemErrorMessage))
			return
		}
		writeEnvelope(w, http.StatusOK, resp)
		return
	}

	if req.Utterance() == "" {
		writeEnvelope(w, http.StatusBadRequest, kakao.SimpleText(badRequestMessage))
		return
	}

	resp, err := s.machine.Handle(r.Context(), userKey, req.Utterance(), req.CallbackURL())
	if err != nil {
		log.Printf("[Skill Error] user: %s: %v", userKey, err)
		writeEnvelope(w, http.StatusInternalServerError, kakao.SimpleText(systemErrorMessage))
		return
	}
	writeEnvelope(w, http.StatusOK, resp)
}

// handleAnalysisCallback runs a deferred analysis task delivered by the
// task queue.
func (s *Server) handleAnalysisCallback(w http.ResponseWriter, r *http.Request) {
	var task queue.AnalysisTask
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "Bad Request: Invalid body.", http.StatusBadRequest)
		return
	}
	if task.UserKey == "" || len(task.History) == 0 || task.CallbackURL == "" {
		http.Error(w, "Bad Request: Missing required fields.", http.StatusBadRequest)
		return
	}

	if err := s.machine.ProcessAnalysis(r.Context(), &task); err != nil {
		observability.RecordAnalysisTask("error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	observability.RecordAnalysisTask("success")
	fmt.Fprint(w, "Callback job processed.")
}

func writeEnvelope(w http.ResponseWriter, status int, resp *kakao.Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[Response Encode Error] %v", err)
	}
}

// recoverToApology converts a handler panic into the system-error
// bubble instead of a dropped connection.
func (s *Server) recoverToApology(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[Panic] %s %s: %v", r.Method, r.URL.Path, rec)
				writeEnvelope(w, http.StatusInternalServerError, kakao.SimpleText(systemErrorMessage))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}
		observability.RecordHTTPRequest(r.Method, path, strconv.Itoa(ww.Status()), time.Since(start))
	})
}

// Package webhook runs imports on build notifications posted by a CI
// server.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/forceimport/internal/config"
	ferrors "github.com/schaermu/forceimport/internal/errors"
)

// SignatureHeader carries the HMAC-SHA256 of the request body as
// "sha256=<hex>".
const SignatureHeader = "X-Forceimport-Signature-256"

// BuildEvent represents the relevant fields of a build notification
type BuildEvent struct {
	Job    string `json:"job"`
	Build  string `json:"build"`
	Status string `json:"status"`
}

// Runner performs one import run.
type Runner func(ctx context.Context) error

// Server implements the notification HTTP server
type Server struct {
	cfg        *config.Config
	run        Runner
	logger     *slog.Logger
	secret     []byte
	runMu      sync.Mutex // guards runRunning and runPending
	runRunning bool       // whether an import is currently in progress
	runPending bool       // whether another import is needed after the current one
	debounce   *debouncer

	ctxMu sync.Mutex
	ctx   context.Context
}

// debouncer implements debouncing for notifications
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// NewServer creates a new notification server
func NewServer(cfg *config.Config, run Runner, logger *slog.Logger) (*Server, error) {
	secret, err := os.ReadFile(cfg.Serve.SecretFile)
	if err != nil {
		return nil, ferrors.Configuration("read notification secret", err)
	}

	secret = []byte(strings.TrimSpace(string(secret)))
	if len(secret) == 0 {
		return nil, ferrors.Configurationf("notification secret %s is empty", cfg.Serve.SecretFile)
	}

	return &Server{
		cfg:      cfg,
		run:      run,
		logger:   logger,
		secret:   secret,
		debounce: &debouncer{delay: cfg.Serve.Debounce},
		ctx:      context.Background(),
	}, nil
}

// Handler returns the HTTP handler accepting notifications.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleNotification)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintln(w, "ok")
	})
	return mux
}

// Serve performs an initial import and then serves notifications on the
// given listeners until ctx is cancelled. Without listeners it listens on
// the configured address.
func (s *Server) Serve(ctx context.Context, listeners []net.Listener) error {
	s.ctxMu.Lock()
	s.ctx = ctx
	s.ctxMu.Unlock()

	s.logger.Info("performing initial import before serving notifications")
	s.performRun(ctx)

	if len(listeners) == 0 {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", s.cfg.Serve.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.cfg.Serve.ListenAddr, err)
		}
		listeners = []net.Listener{l}
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		g.Go(func() error {
			s.logger.Info("notification server listening", "addr", l.Addr().String())
			if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down notification server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// handleNotification handles incoming build notifications
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting non-POST request", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" {
		s.logger.Warn("rejecting request with invalid content type", "content_type", contentType)
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	if !s.verifySignature(body, r.Header.Get(SignatureHeader)) {
		s.logger.Warn("rejecting request with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	var event BuildEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("failed to parse notification payload", "error", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	s.logger.Info("received notification", "job", event.Job, "build", event.Build, "status", event.Status)

	if !s.isJobAllowed(event.Job) {
		s.logger.Info("ignoring notification for disallowed job", "job", event.Job)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Job not configured for import\n")
		return
	}

	if !isSuccessful(event.Status) {
		s.logger.Info("ignoring unsuccessful build", "job", event.Job, "status", event.Status)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Build not successful\n")
		return
	}

	s.debounce.trigger(func() {
		s.performRun(s.baseContext())
	})

	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "Import triggered\n")
}

// verifySignature verifies the HMAC signature of a notification
func (s *Server) verifySignature(body []byte, signature string) bool {
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || hexSig == "" {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(hexSig)), []byte(expected))
}

// isJobAllowed checks if the job is in the allowed list
func (s *Server) isJobAllowed(job string) bool {
	if len(s.cfg.Serve.AllowedJobs) == 0 {
		return true // no filter configured
	}
	return slices.Contains(s.cfg.Serve.AllowedJobs, job)
}

func isSuccessful(status string) bool {
	switch strings.ToLower(status) {
	case "", "success", "stable":
		return true
	}
	return false
}

func (s *Server) baseContext() context.Context {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	return s.ctx
}

// performRun executes an import with single-flight semantics.
// If an import is already in progress, at most one additional run is
// queued; further concurrent requests are folded into it.
func (s *Server) performRun(ctx context.Context) {
	s.runMu.Lock()
	if s.runRunning {
		s.runPending = true
		s.runMu.Unlock()
		s.logger.Info("import already in progress, queuing pending re-run")
		return
	}
	s.runRunning = true
	s.runMu.Unlock()

	for {
		if ctx.Err() != nil {
			s.logger.Info("skipping import, server is shutting down")
		} else {
			s.logger.Info("performing import")
			if err := s.run(ctx); err != nil {
				s.logger.Error("import failed", "error", err)
			} else {
				s.logger.Info("import completed successfully")
			}
		}

		s.runMu.Lock()
		if !s.runPending {
			s.runRunning = false
			s.runMu.Unlock()
			break
		}
		s.runPending = false
		s.runMu.Unlock()

		s.logger.Info("re-running import due to pending request")
	}
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wajeht/grafana-pdf/assets"
)

// kioskParam asks the dashboard to render without navigation chrome.
const kioskParam = "kiosk"

type Server struct {
	renderer  *Renderer
	config    Config
	logger    *slog.Logger
	gate      *semaphore.Weighted
	journal   *Journal
	errorPage *template.Template
}

type PageData struct {
	Title   string
	Code    int
	Message string
}

// NewServer wires the Front. journal may be nil.
func NewServer(cfg Config, logger *slog.Logger, renderer *Renderer, journal *Journal) (*Server, error) {
	tmpl, err := template.ParseFS(assets.EmbeddedFiles, "templates/error.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{
		renderer:  renderer,
		config:    cfg,
		logger:    logger,
		journal:   journal,
		errorPage: tmpl,
	}
	if cfg.MaxConcurrent > 0 {
		s.gate = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return s, nil
}

// Routes proxies every path to the dashboard backend.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleRender)
}

// BuildTargetURL appends the inbound path and query to the backend URL and
// adds the kiosk marker with '&' when a query is already present, '?' when
// not.
func BuildTargetURL(backendURL, requestURI string) (string, error) {
	target := backendURL + requestURI
	if strings.Contains(target, "?") {
		target += "&" + kioskParam
	} else {
		target += "?" + kioskParam
	}

	u, err := url.Parse(target)
	if err != nil {
		return target, fmt.Errorf("%w: %v", ErrTargetURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return target, fmt.Errorf("%w: %q", ErrTargetURL, target)
	}
	return target, nil
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	target, err := BuildTargetURL(s.config.BackendURL, r.URL.RequestURI())
	if err != nil {
		s.fail(w, r, target, StageURL, err, time.Since(start))
		return
	}
	s.logger.Info("trying", slog.String("url", target))

	if s.gate != nil {
		if err := s.gate.Acquire(r.Context(), 1); err != nil {
			s.logger.Warn("request abandoned while waiting for a browser slot",
				slog.String("url", target),
				slog.String("error", err.Error()),
			)
			s.record(r.Context(), JournalEntry{
				TargetURL: target,
				Status:    StatusFailed,
				Stage:     StageLaunch,
				Duration:  time.Since(start),
				Error:     err.Error(),
			})
			s.handleError(w, http.StatusServiceUnavailable, "Service Unavailable")
			return
		}
		defer s.gate.Release(1)
	}

	stream, timing, err := s.renderer.Render(r.Context(), RenderRequest{
		TargetURL:   target,
		Viewport:    s.config.Viewport(),
		Credentials: s.config.Credentials(),
	})
	if err != nil {
		s.logger.Error("render failed",
			slog.String("url", target),
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", timing.Total.Milliseconds()),
		)
		s.fail(w, r, target, stageOf(err), err, time.Since(start))
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.Warn("failed to tear down browser", slog.String("url", target), slog.String("error", err.Error()))
		}
	}()

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, stream)
	entry := JournalEntry{
		TargetURL: target,
		Status:    StatusOK,
		Stage:     StageStream,
		Bytes:     n,
		Duration:  time.Since(start),
	}
	if err != nil {
		// The status line is already out; all that is left is to log it.
		s.logger.Error("streaming PDF failed",
			slog.String("url", target),
			slog.Int64("bytes", n),
			slog.Int64("pdf_bytes_read", stream.BytesRead()),
			slog.String("error", err.Error()),
		)
		entry.Status = StatusFailed
		entry.Error = err.Error()
		s.record(r.Context(), entry)
		return
	}

	s.logger.Info("finished rendering PDF",
		slog.String("url", target),
		slog.Int64("setup_ms", timing.Setup.Milliseconds()),
		slog.Int64("nav_ms", timing.Navigation.Milliseconds()),
		slog.Int64("cleanup_ms", timing.Cleanup.Milliseconds()),
		slog.Int64("pdf_ms", timing.PDF.Milliseconds()),
		slog.Int64("total_ms", entry.Duration.Milliseconds()),
		slog.Int("size_kb", int(n/1024)),
	)
	s.record(r.Context(), entry)
}

func stageOf(err error) Stage {
	switch {
	case errors.Is(err, ErrTargetURL):
		return StageURL
	case errors.Is(err, ErrLaunch):
		return StageLaunch
	case errors.Is(err, ErrNavigation):
		return StageNavigate
	default:
		return StagePDF
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, target string, stage Stage, err error, elapsed time.Duration) {
	if stage == StageURL {
		s.logger.Error("building target url failed", slog.String("url", target), slog.String("error", err.Error()))
	}
	s.record(r.Context(), JournalEntry{
		TargetURL: target,
		Status:    StatusFailed,
		Stage:     stage,
		Duration:  elapsed,
		Error:     err.Error(),
	})
	s.handleError(w, http.StatusInternalServerError, "Internal Server Error")
}

func (s *Server) handleError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := s.errorPage.Execute(w, PageData{
		Title:   fmt.Sprintf("%d - Error", code),
		Code:    code,
		Message: message,
	}); err != nil {
		s.logger.Error("failed to write error page", slog.String("error", err.Error()))
	}
}

// record writes to the journal after the response is settled, so it must
// outlive a cancelled request context.
func (s *Server) record(ctx context.Context, e JournalEntry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("failed to record render", slog.String("url", e.TargetURL), slog.String("error", err.Error()))
	}
}

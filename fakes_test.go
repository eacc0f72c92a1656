package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
)

// fakeLauncher stands in for Chromium and counts session lifecycles.
type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	closes   int
	opts     SessionOptions
	visited  []string
	hideArgs []string
	pdfOpts  []PDFOptions

	launchErr error
	navErr    error
	hideErr   error
	pdfErr    error
	hidden    int
	pdf       []byte
}

func (f *fakeLauncher) Launch(_ context.Context, opts SessionOptions) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	f.launches++
	f.opts = opts
	return &fakeSession{l: f}, nil
}

func (f *fakeLauncher) counts() (launches, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches, f.closes
}

type fakeSession struct {
	l *fakeLauncher
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.visited = append(s.l.visited, url)
	return s.l.navErr
}

func (s *fakeSession) HideElements(_ context.Context, classNames []string) (int, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.hideArgs = append(s.l.hideArgs, classNames...)
	return s.l.hidden, s.l.hideErr
}

func (s *fakeSession) PrintPDF(_ context.Context, opts PDFOptions) (io.ReadCloser, error) {
	s.l.mu.Lock()
	s.l.pdfOpts = append(s.l.pdfOpts, opts)
	s.l.mu.Unlock()
	if s.l.pdfErr != nil {
		return nil, s.l.pdfErr
	}
	return io.NopCloser(bytes.NewReader(s.l.pdf)), nil
}

func (s *fakeSession) Close() error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.closes++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BackendURL = "http://grafana.test:3000"
	return cfg
}

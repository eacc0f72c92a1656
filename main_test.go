package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := newLogger(DefaultConfig(), &buf)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("visible")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("debug record written at info level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected info record, got %q", buf.String())
	}

	buf.Reset()
	cfg := DefaultConfig()
	cfg.Debug = true
	logger, closer = newLogger(cfg, &buf)
	defer closer.Close()

	logger.Debug("fetching url")
	if !strings.Contains(buf.String(), "fetching url") {
		t.Errorf("expected debug record, got %q", buf.String())
	}
}

func TestNewLoggerWritesLogFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "grafana-pdf.log")

	var buf bytes.Buffer
	logger, closer := newLogger(cfg, &buf)
	logger.Info("server running")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "server running") || !strings.Contains(buf.String(), "server running") {
		t.Errorf("expected record in both outputs, file=%q stdout=%q", data, buf.String())
	}
}

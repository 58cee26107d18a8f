package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ekaya-inc/opd-explorer/pkg/config"
)

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explorer.log")
	logger, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("retrieval finished")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"msg":"retrieval finished"`) {
		t.Errorf("log file missing info entry: %s", content)
	}
	if strings.Contains(content, "hidden") {
		t.Errorf("debug entry written at info level: %s", content)
	}
	if !strings.Contains(content, `"level":"INFO"`) {
		t.Errorf("expected capital level encoding: %s", content)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}, true); err == nil {
		t.Error("expected error for unknown level")
	}
}

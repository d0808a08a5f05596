package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withConfigDir(t *testing.T, dir string) {
	t.Helper()
	originalFunc := configDirFunc
	configDirFunc = func() string { return dir }
	t.Cleanup(func() { configDirFunc = originalFunc })
}

func withInitForce(t *testing.T, force bool) {
	t.Helper()
	originalForce := initForce
	initForce = force
	t.Cleanup(func() { initForce = originalForce })
}

func TestCreateConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	withConfigDir(t, tempDir)
	withInitForce(t, true)

	result := createConfigFile()
	if result.status != "done" {
		t.Fatalf("expected status 'done', got %q: %s", result.status, result.message)
	}

	content, err := os.ReadFile(filepath.Join(tempDir, "config.yaml"))
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if !strings.HasPrefix(string(content), "# docforge configuration") {
		t.Error("config file doesn't contain expected header")
	}
	for _, section := range []string{"templates:", "render:", "logging:", "events:", "watch:"} {
		if !strings.Contains(string(content), section) {
			t.Errorf("config file missing section: %s", section)
		}
	}
}

func TestCreateConfigFile_ExistingNoForce(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("existing"), 0o644); err != nil {
		t.Fatalf("failed to create existing config: %v", err)
	}
	withConfigDir(t, tempDir)
	withInitForce(t, false)

	original := nonInteractive
	nonInteractive = true
	defer func() { nonInteractive = original }()

	result := createConfigFile()
	if result.status != "skipped" {
		t.Errorf("expected status 'skipped', got %q: %s", result.status, result.message)
	}

	content, _ := os.ReadFile(configPath)
	if string(content) != "existing" {
		t.Error("existing config was modified")
	}
}

func TestCreateTemplateDir(t *testing.T) {
	tempDir := t.TempDir()
	withConfigDir(t, tempDir)

	result := createTemplateDir()
	if result.status != "done" {
		t.Fatalf("expected status 'done', got %q: %s", result.status, result.message)
	}
	if info, err := os.Stat(filepath.Join(tempDir, "templates")); err != nil || !info.IsDir() {
		t.Fatalf("template directory was not created: %v", err)
	}

	result = createTemplateDir()
	if result.status != "skipped" {
		t.Errorf("expected second run to skip, got %q", result.status)
	}
}

func TestDefaultConfigDir(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if got := defaultConfigDir(); got != filepath.Join(cwd, ".docforge") {
		t.Errorf("expected %s, got %s", filepath.Join(cwd, ".docforge"), got)
	}
}

func TestInitResult_JSON(t *testing.T) {
	data, err := json.Marshal([]initResult{{name: "Config file", status: "done", message: `Wrote "x"`}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded []map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded[0]["status"] != "done" || decoded[0]["message"] != `Wrote "x"` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"design-coach/internal/config"
	"design-coach/internal/usecase"
)

func writeSampleConfig(t *testing.T, archiveBackend string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "config", "master_config.yaml"))
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "master_config.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	require.NoError(t, config.SetValue(path, "archive.backend", archiveBackend))
	require.NoError(t, config.SetValue(path, "archive.dir", filepath.Join(dir, "conversations")))
	require.NoError(t, config.SetValue(path, "application.save_conversations", "true"))
	return path
}

func TestSampleConfigsValidate(t *testing.T) {
	for _, name := range []string{"master_config.yaml", "defaults.yaml"} {
		raw, err := os.ReadFile(filepath.Join("..", "config", name))
		require.NoError(t, err)
		cfg, err := config.Parse(raw)
		require.NoError(t, err, name)
		require.NoError(t, cfg.Validate(), name)
		require.Len(t, cfg.Stages(), 5, name)
	}
}

func TestBuildApp_MockTurnIsArchived(t *testing.T) {
	t.Setenv("MOCK_RESPONSES", "true")
	path := writeSampleConfig(t, config.ArchiveFile)

	a, err := buildApp(context.Background(), path, new(slog.LevelVar))
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	out, err := a.coach.SubmitMessage(context.Background(), usecase.SubmitInput{SessionID: "s1", Message: "Wir haben ein Problem"})
	require.NoError(t, err)
	require.Contains(t, out.Reply, "Problem Statement")
	require.True(t, out.Progress["problem_statement"])
	require.Equal(t, 20, out.Percentage)

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(path), "conversations"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].Name(), "s1_"))
}

func TestBuildApp_ServesHealthAndMetrics(t *testing.T) {
	t.Setenv("MOCK_RESPONSES", "true")
	a, err := buildApp(context.Background(), writeSampleConfig(t, config.ArchiveNone), new(slog.LevelVar))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	h, err := a.handler()
	require.NoError(t, err)
	routes := h.Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"mode":"mock"`)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestApplyLogLevel(t *testing.T) {
	level := new(slog.LevelVar)
	applyLogLevel(level, "debug")
	require.Equal(t, slog.LevelDebug, level.Level())
	applyLogLevel(level, "nonsense")
	require.Equal(t, slog.LevelDebug, level.Level())
	applyLogLevel(level, "WARN")
	require.Equal(t, slog.LevelWarn, level.Level())
}

func TestConfigCommands(t *testing.T) {
	path := writeSampleConfig(t, config.ArchiveNone)
	defaults := filepath.Join("..", "config", "defaults.yaml")

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append([]string{"--config", path, "--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
		err := rootCmd.Execute()
		return out.String(), err
	}

	out, err := run("config", "validate")
	require.NoError(t, err)
	require.Contains(t, out, "is valid")

	_, err = run("config", "set", "model.temperature", "0.7")
	require.NoError(t, err)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.InDelta(t, 0.7, cfg.Model.Temperature, 1e-9)

	_, err = run("config", "set", "model.temperature", "9")
	require.Error(t, err)

	out, err = run("config", "view", "--public")
	require.NoError(t, err)
	require.Contains(t, out, `"deployment_name"`)
	require.NotContains(t, out, "endpoint_url")

	_, err = run("config", "reset", "--defaults", defaults)
	require.NoError(t, err)
	cfg, err = config.Load(path)
	require.NoError(t, err)
	require.InDelta(t, 0.3, cfg.Model.Temperature, 1e-9)
}

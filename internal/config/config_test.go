package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
}

func TestLoad_WritesDefaults(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.MaxConcurrent != 4 {
		t.Errorf("expected default max_concurrent 4, got %d", cfg.MaxConcurrent)
	}
	if cfg.PaceSeconds != 3 {
		t.Errorf("expected default pace_seconds 3, got %d", cfg.PaceSeconds)
	}
	if cfg.Housekeeping.Schedule != "@daily" {
		t.Errorf("expected default housekeeping schedule @daily, got %q", cfg.Housekeeping.Schedule)
	}
	if cfg.Housekeeping.RetentionDays != 90 {
		t.Errorf("expected default retention 90 days, got %d", cfg.Housekeeping.RetentionDays)
	}

	// A default config file was written.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected default config file on disk: %v", err)
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	original := &Config{
		DataDir:       "/tmp/test-data",
		LogLevel:      "debug",
		CardsDir:      "/tmp/test-cards",
		MaxConcurrent: 8,
		PaceSeconds:   1,
		AdminIDs:      []int64{42, 99},
	}
	original.LLM.Provider = "openai"
	original.LLM.BaseURL = "https://api.openai.com/v1"
	original.LLM.APIKey = "sk-test-round-trip"
	original.LLM.Model = "gpt-4o-mini"
	original.LLM.MaxTokens = 800
	original.LLM.Temperature = 0.5
	original.LLM.MaxQuestionTokens = 128
	original.Telegram.Token = "bot-token-456"
	original.Housekeeping.Schedule = "@hourly"
	original.Housekeeping.RetentionDays = 30

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.CardsDir != original.CardsDir {
		t.Errorf("CardsDir mismatch: %v != %v", loaded.CardsDir, original.CardsDir)
	}
	if loaded.PaceSeconds != original.PaceSeconds {
		t.Errorf("PaceSeconds mismatch: %v != %v", loaded.PaceSeconds, original.PaceSeconds)
	}
	if len(loaded.AdminIDs) != 2 || loaded.AdminIDs[0] != 42 || loaded.AdminIDs[1] != 99 {
		t.Errorf("AdminIDs mismatch: %v", loaded.AdminIDs)
	}
	if loaded.LLM.APIKey != original.LLM.APIKey {
		t.Errorf("LLM.APIKey mismatch: %v != %v", loaded.LLM.APIKey, original.LLM.APIKey)
	}
	if loaded.LLM.MaxQuestionTokens != original.LLM.MaxQuestionTokens {
		t.Errorf("LLM.MaxQuestionTokens mismatch: %v != %v", loaded.LLM.MaxQuestionTokens, original.LLM.MaxQuestionTokens)
	}
	if loaded.Telegram.Token != original.Telegram.Token {
		t.Errorf("Telegram.Token mismatch: %v != %v", loaded.Telegram.Token, original.Telegram.Token)
	}
	if loaded.Housekeeping.Schedule != original.Housekeeping.Schedule {
		t.Errorf("Housekeeping.Schedule mismatch: %v != %v", loaded.Housekeeping.Schedule, original.Housekeeping.Schedule)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{}
	cfg.LLM.APIKey = "file-key"
	cfg.Telegram.Token = "file-token"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_BASE_URL", "https://proxy.example.com/v1")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LLM.APIKey != "env-key" {
		t.Errorf("expected env override for api key, got %q", loaded.LLM.APIKey)
	}
	if loaded.LLM.BaseURL != "https://proxy.example.com/v1" {
		t.Errorf("expected env override for base url, got %q", loaded.LLM.BaseURL)
	}
	if loaded.Telegram.Token != "env-token" {
		t.Errorf("expected env override for telegram token, got %q", loaded.Telegram.Token)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify no temp file left behind
	tmpPath := path + ".tmp"
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}

	// Verify the file is valid JSON
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestListValues_MasksSecrets(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	cfg.LLM.APIKey = "sk-abcdef1234"
	cfg.Telegram.Token = "tok"

	values, err := ListValues(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if values["llm.api_key"] != "***1234" {
		t.Errorf("expected masked api key, got %v", values["llm.api_key"])
	}
	if values["telegram.token"] != "***tok" {
		t.Errorf("expected masked short token, got %v", values["telegram.token"])
	}
	if values["log_level"] != "info" {
		t.Errorf("expected plain log_level, got %v", values["log_level"])
	}
}

func TestGetValue(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	val, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatal(err)
	}
	if val != "info" {
		t.Errorf("expected info, got %v", val)
	}

	if _, err := GetValue(path, "no.such.key"); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestSetValue(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "pace_seconds", "5"); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(path, "log_level", "debug"); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(path, "admin_ids", "[42, 99]"); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(path, "no.such.key", "x"); err == nil {
		t.Error("expected an error for an unknown key")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.PaceSeconds != 5 {
		t.Errorf("expected pace_seconds 5, got %d", loaded.PaceSeconds)
	}
	if loaded.LogLevel != "debug" {
		t.Errorf("expected log_level debug, got %q", loaded.LogLevel)
	}
	if len(loaded.AdminIDs) != 2 || loaded.AdminIDs[0] != 42 {
		t.Errorf("expected admin_ids [42 99], got %v", loaded.AdminIDs)
	}
}

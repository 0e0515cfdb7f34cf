package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "secrets.json", `{"db_dsn":"codeclaim.db","eligibility_path":"list.xlsx","claim_log_path":"claims.xlsx","admin_password":"admin123"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBDSN != "codeclaim.db" {
		t.Fatalf("DBDSN = %q, want %q", cfg.DBDSN, "codeclaim.db")
	}
	if cfg.EligibilityPath != "list.xlsx" {
		t.Fatalf("EligibilityPath = %q, want %q", cfg.EligibilityPath, "list.xlsx")
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.ReconcileSchedule != "@every 1m" {
		t.Fatalf("ReconcileSchedule = %q, want %q", cfg.ReconcileSchedule, "@every 1m")
	}
	if cfg.Flush.MaxAttempts != 3 {
		t.Fatalf("Flush.MaxAttempts = %d, want 3", cfg.Flush.MaxAttempts)
	}
	if cfg.Sheets.ClaimLogSheet != "claims" {
		t.Fatalf("ClaimLogSheet = %q, want %q", cfg.Sheets.ClaimLogSheet, "claims")
	}
	if len(cfg.Sheets.PhoneColumns) != 2 || cfg.Sheets.PhoneColumns[1] != "手机号" {
		t.Fatalf("PhoneColumns = %v, want default aliases", cfg.Sheets.PhoneColumns)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	dir := t.TempDir()
	content := `db_dsn: postgres://localhost/codeclaim
eligibility_path: list.xlsx
claim_log_path: claims.xlsx
admin_password: secret
listen_addr: ":9090"
flush:
  max_attempts: 5
  initial_interval_ms: 10
sheets:
  claim_log_sheet: records
  status_labels:
    - ["open", "done"]
`
	path := writeTempFile(t, dir, "config.yaml", content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.Flush.MaxAttempts != 5 {
		t.Fatalf("Flush.MaxAttempts = %d, want 5", cfg.Flush.MaxAttempts)
	}
	if cfg.Flush.InitialInterval().Milliseconds() != 10 {
		t.Fatalf("InitialInterval = %v, want 10ms", cfg.Flush.InitialInterval())
	}
	if cfg.Flush.MaxIntervalMs != 2000 {
		t.Fatalf("MaxIntervalMs = %d, want 2000", cfg.Flush.MaxIntervalMs)
	}
	if cfg.Sheets.ClaimLogSheet != "records" {
		t.Fatalf("ClaimLogSheet = %q, want %q", cfg.Sheets.ClaimLogSheet, "records")
	}
	if len(cfg.Sheets.StatusLabels) != 1 || cfg.Sheets.StatusLabels[0][1] != "done" {
		t.Fatalf("StatusLabels = %v, want [[open done]]", cfg.Sheets.StatusLabels)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("Load empty path: expected error")
	}

	dir := t.TempDir()
	missingDB := writeTempFile(t, dir, "missing_db.json", `{"eligibility_path":"a.xlsx","claim_log_path":"b.xlsx","admin_password":"x"}`)
	if _, err := Load(missingDB); err == nil {
		t.Fatalf("Load missing db_dsn: expected error")
	}

	missingPassword := writeTempFile(t, dir, "missing_password.json", `{"db_dsn":"x.db","eligibility_path":"a.xlsx","claim_log_path":"b.xlsx"}`)
	if _, err := Load(missingPassword); err == nil {
		t.Fatalf("Load missing admin_password: expected error")
	}

	invalid := writeTempFile(t, dir, "invalid.json", "{")
	if _, err := Load(invalid); err == nil {
		t.Fatalf("Load invalid json: expected error")
	}

	sameLabels := writeTempFile(t, dir, "labels.json", `{"db_dsn":"x.db","eligibility_path":"a.xlsx","claim_log_path":"b.xlsx","admin_password":"x","sheets":{"status_labels":[["done","DONE"]]}}`)
	if _, err := Load(sameLabels); err == nil {
		t.Fatalf("Load duplicate status labels: expected error")
	}
}

func TestSheetConfigValidate(t *testing.T) {
	cfg := DefaultSheetConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate default: %v", err)
	}

	cfg.CodeColumns = []string{" "}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate blank alias: expected error")
	}
}

package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shadowmesh/hebench/pkg/params"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening log file: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshaling log line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestEntriesCarryRoleAndRunIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	logger, err := NewLogger("client", INFO, path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("starting up")

	p := &params.Parameters{
		Variant:      params.HHE,
		IntBits:      8,
		BatchSize:    2,
		BatchCount:   4,
		DataHandling: params.AllAtOnce,
	}
	logger.BindRun("20260101_000000", p)
	logger.Infof("batch %d/%d complete", 1, p.BatchCount)

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if entries[0].Role != "client" || entries[0].Level != "INFO" {
		t.Errorf("first entry role/level = %q/%q, want client/INFO", entries[0].Role, entries[0].Level)
	}
	if entries[0].Run != nil {
		t.Errorf("entry before BindRun carries run identity %+v", entries[0].Run)
	}

	run := entries[1].Run
	if run == nil {
		t.Fatalf("entry after BindRun carries no run identity")
	}
	if run.Stamp != "20260101_000000" || run.Variant != "HHE" || run.BatchCount != 4 {
		t.Errorf("run identity = %+v, want stamp 20260101_000000 variant HHE batch_count 4", run)
	}
	if entries[1].Message != "batch 1/4 complete" {
		t.Errorf("message = %q, want formatted batch progress", entries[1].Message)
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttp.log")
	logger, err := NewLogger("ttp", WARN, path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("suppressed")
	logger.Infof("also %s", "suppressed")
	logger.Warnf("dial retry %d", 3)
	logger.Errorf("send failed: %v", os.ErrClosed)

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (INFO suppressed at WARN level)", len(entries))
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Errorf("levels = %q, %q, want WARN, ERROR", entries[0].Level, entries[1].Level)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, err := NewLogger("server", INFO, path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/mmprotest/openevolve/internal/store"
)

func TestInitDBCreatesStore(t *testing.T) {
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "run.db")

	var out bytes.Buffer
	initDBCmd.SetOut(&out)
	if err := initDBCmd.RunE(initDBCmd, nil); err != nil {
		t.Fatalf("init-db: %v", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()

	if _, ok, err := st.GetRun("nonexistent"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
}

func TestInspectRequiresRunIDAndMetric(t *testing.T) {
	inspectRunID = ""
	inspectMetrics = nil
	if err := inspectCmd.RunE(inspectCmd, nil); err == nil {
		t.Fatalf("expected error for missing --run-id")
	}

	inspectRunID = "run-1"
	if err := inspectCmd.RunE(inspectCmd, nil); err == nil {
		t.Fatalf("expected error for missing --metric")
	}
}

func TestExportArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "run.db")

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.InsertCandidate(store.Candidate{ID: "c1", RunID: "run-1", Generation: 0}); err != nil {
		t.Fatalf("insert candidate: %v", err)
	}
	if err := st.InsertEvaluations("c1", []store.Evaluation{{Metric: "lints", Value: 1, Passed: true}}); err != nil {
		t.Fatalf("insert evaluation: %v", err)
	}
	st.Close()

	exportRunID = "run-1"
	exportMetrics = []string{"lints"}
	exportMinimize = nil
	exportCapacity = 10
	exportNoveltyK = 1
	exportOut = filepath.Join(dir, "archive.json")

	if err := exportArchiveCmd.RunE(exportArchiveCmd, nil); err != nil {
		t.Fatalf("export-archive: %v", err)
	}
}

package config

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func TestReportClose_ArchivesEntries(t *testing.T) {
	tmpDir := t.TempDir()
	reportPath := filepath.Join(tmpDir, "report.zip")

	conf := &ReporterConfig{Destination: reportPath}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	storedPath := filepath.Join(tmpDir, "stored.log")
	if err := os.WriteFile(storedPath, []byte("log line\n"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	r.Store("final.log", storedPath)
	r.StoreData("config/config.yaml", []byte("version: 1\n"))

	if err := r.Close(); err != nil {
		t.Fatalf("Report.Close() error: %v", err)
	}

	zr, err := zip.OpenReader(reportPath)
	if err != nil {
		t.Fatalf("report is not a readable zip: %v", err)
	}
	defer zr.Close()

	want := map[string]bool{"MANIFEST": false, "final.log": false, "config/config.yaml": false}
	for _, f := range zr.File {
		if _, ok := want[f.Name]; ok {
			want[f.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("expected %q in report archive", name)
		}
	}
}

func TestReportStore_MissingFileIgnored(t *testing.T) {
	tmpDir := t.TempDir()

	conf := &ReporterConfig{Destination: filepath.Join(tmpDir, "report.zip")}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	r.Store("gone.log", filepath.Join(tmpDir, "does-not-exist.log"))

	// Absent files are silently skipped during finalization.
	if err := r.Close(); err != nil {
		t.Errorf("Close() with missing stored file error = %v", err)
	}
}

func TestReportClose_NilReport(t *testing.T) {
	var r *Report
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil report should not error, got: %v", err)
	}
}

func TestReportClose_NilFile(t *testing.T) {
	r := &Report{entries: make(map[string]entry)}
	if err := r.Close(); err != nil {
		t.Errorf("Close with nil file should not error, got: %v", err)
	}
}

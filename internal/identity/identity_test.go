package identity_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/brianhealey/slidepi/internal/identity"
)

func TestGetVersion_Fallback(t *testing.T) {
	// Use a temp dir that contains no metadata.json
	dir := t.TempDir()
	got := identity.GetVersionFromDir(dir)
	if got != identity.DefaultVersion {
		t.Errorf("GetVersionFromDir(%q) = %q; want %q", dir, got, identity.DefaultVersion)
	}
}

func TestGetVersion_FromFile(t *testing.T) {
	dir := t.TempDir()
	want := "1.2.3"
	data, _ := json.Marshal(map[string]any{"version": want})
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	got := identity.GetVersionFromDir(dir)
	if got != want {
		t.Errorf("GetVersionFromDir(%q) = %q; want %q", dir, got, want)
	}
}

func TestGetVersion_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	got := identity.GetVersionFromDir(dir)
	if got != identity.DefaultVersion {
		t.Errorf("GetVersionFromDir with invalid JSON = %q; want %q", got, identity.DefaultVersion)
	}
}

func TestGetVersion_LinkedVersionWins(t *testing.T) {
	orig := identity.Version
	identity.Version = "9.9.9"
	t.Cleanup(func() { identity.Version = orig })

	if got := identity.GetVersion(t.TempDir()); got != "9.9.9" {
		t.Errorf("GetVersion() = %q; want linked version", got)
	}
}

func TestInfo(t *testing.T) {
	info := identity.Info("")
	if info.Hostname == "" {
		t.Error("Info().Hostname is empty")
	}
	if info.Version == "" {
		t.Error("Info().Version is empty")
	}
}

func TestCPUTemp(t *testing.T) {
	orig := identity.ThermalPath
	t.Cleanup(func() { identity.ThermalPath = orig })

	identity.ThermalPath = filepath.Join(t.TempDir(), "temp")
	if _, err := identity.CPUTemp(); err == nil {
		t.Error("CPUTemp() with missing file: want error")
	}

	if err := os.WriteFile(identity.ThermalPath, []byte("48312\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := identity.CPUTemp()
	if err != nil {
		t.Fatalf("CPUTemp() error: %v", err)
	}
	if got != 48.312 {
		t.Errorf("CPUTemp() = %v; want 48.312", got)
	}

	if err := os.WriteFile(identity.ThermalPath, []byte("hot"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := identity.CPUTemp(); err == nil {
		t.Error("CPUTemp() with garbage: want error")
	}
}

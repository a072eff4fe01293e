package identity

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsEmptyImprint(t *testing.T) {
	imp, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if imp.Exists() {
		t.Fatalf("expected missing file to report no imprint, got %+v", imp)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operator.json")
	imp := Imprint{Name: "Pierce", AgentName: "Tako", ImprintedAt: time.Now().UTC()}
	if err := Save(path, imp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Exists() {
		t.Fatalf("expected saved imprint to exist")
	}
	if loaded.Name != imp.Name || loaded.AgentName != imp.AgentName {
		t.Fatalf("round trip mismatch: got %+v want %+v", loaded, imp)
	}
}

func TestExistsRequiresNameAndTimestamp(t *testing.T) {
	if (Imprint{Name: "x"}).Exists() {
		t.Errorf("expected Exists()==false without a timestamp")
	}
	if (Imprint{ImprintedAt: time.Now()}).Exists() {
		t.Errorf("expected Exists()==false without a name")
	}
}

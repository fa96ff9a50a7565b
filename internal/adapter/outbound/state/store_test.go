package state

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func newStore(t *testing.T) *BaselineStore {
	t.Helper()
	return NewBaselineStore(filepath.Join(t.TempDir(), "baselines.json"), nil)
}

func TestBaselineStore_SetGetDelete(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	if _, ok, err := s.Get("eval-1"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	if err := s.Set("eval-1", "run-9", "promoted after review"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	b, ok, err := s.Get("eval-1")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if b.RunID != "run-9" || b.Note != "promoted after review" || b.RegisteredAt.IsZero() {
		t.Errorf("baseline = %+v", b)
	}

	// Replace.
	if err := s.Set("eval-1", "run-10", ""); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	b, _, _ = s.Get("eval-1")
	if b.RunID != "run-10" {
		t.Errorf("replaced baseline = %+v", b)
	}

	if err := s.Delete("eval-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, ok, _ := s.Get("eval-1"); ok {
		t.Error("baseline should be gone after Delete()")
	}

	// Deleting an absent baseline is a no-op.
	if err := s.Delete("eval-1"); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
}

func TestBaselineStore_List(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	for _, id := range []string{"eval-b", "eval-a"} {
		if err := s.Set(id, "run-1", ""); err != nil {
			t.Fatalf("Set(%s) error: %v", id, err)
		}
	}

	ids, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "eval-a" || ids[1] != "eval-b" {
		t.Errorf("List() = %v", ids)
	}
}

func TestBaselineStore_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "baselines.json")
	first := NewBaselineStore(path, nil)
	if err := first.Set("eval-1", "run-1", ""); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	second := NewBaselineStore(path, nil)
	b, ok, err := second.Get("eval-1")
	if err != nil || !ok {
		t.Fatalf("Get() from new instance = ok %v, err %v", ok, err)
	}
	if b.RunID != "run-1" {
		t.Errorf("baseline = %+v", b)
	}
}

func TestBaselineStore_FilePermissionsAndBackup(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}

	path := filepath.Join(t.TempDir(), "baselines.json")
	s := NewBaselineStore(path, nil)

	if err := s.Set("eval-1", "run-1", ""); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %04o, want 0600", perm)
	}

	// The second write backs up the first version.
	if err := s.Set("eval-1", "run-2", ""); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("backup missing: %v", err)
	}
}

func TestBaselineStore_RejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "baselines.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewBaselineStore(path, nil)
	if _, _, err := s.Get("eval-1"); err == nil {
		t.Error("Get() on corrupt file should fail")
	}
}

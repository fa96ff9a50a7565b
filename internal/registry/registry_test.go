package registry

import (
	"errors"
	"testing"
)

func TestRegistry_RegisterAndBuild(t *testing.T) {
	t.Parallel()

	r := New[string]()
	if err := r.Register("greeting", func(cfg map[string]any) (string, error) {
		name, _ := cfg["name"].(string)
		return "hello " + name, nil
	}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	got, err := r.Build("greeting", map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if got != "hello world" {
		t.Errorf("Build() = %q", got)
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	t.Parallel()

	r := New[int]()
	factory := func(map[string]any) (int, error) { return 0, nil }

	if err := r.Register("x", factory); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := r.Register("x", factory); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second Register() = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegistry_UnknownName(t *testing.T) {
	t.Parallel()

	r := New[int]()
	if _, err := r.Build("missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Build() = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	r := New[int]()
	factory := func(map[string]any) (int, error) { return 0, nil }
	for _, name := range []string{"c", "a", "b"} {
		if err := r.Register(name, factory); err != nil {
			t.Fatalf("Register(%q) error: %v", name, err)
		}
	}

	names := r.Names()
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("Names() = %v, want [a b c]", names)
	}
}

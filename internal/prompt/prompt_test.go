package prompt

import (
	"errors"
	"testing"
)

func TestNoopPrompter_AlwaysFails(t *testing.T) {
	p := &NoopPrompter{}

	if _, err := p.Select("Board", Values("tasks", "sales")); !errors.Is(err, ErrNonInteractive) {
		t.Errorf("Select error = %v, want ErrNonInteractive", err)
	}
	if _, err := p.Input("Name", "x"); !errors.Is(err, ErrNonInteractive) {
		t.Errorf("Input error = %v, want ErrNonInteractive", err)
	}
	if _, err := p.Confirm("Sure?", true); !errors.Is(err, ErrNonInteractive) {
		t.Errorf("Confirm error = %v, want ErrNonInteractive", err)
	}
}

func TestValues(t *testing.T) {
	opts := Values("file", "postgres")
	if len(opts) != 2 {
		t.Fatalf("Expected 2 options, got %d", len(opts))
	}
	if opts[1].Label != "postgres" || opts[1].Value != "postgres" {
		t.Errorf("Unexpected option %+v", opts[1])
	}
}

func TestHuhPrompter_SelectWithoutOptions(t *testing.T) {
	if _, err := NewHuhPrompter().Select("Board", nil); err == nil {
		t.Error("Expected an error when there is nothing to choose")
	}
}

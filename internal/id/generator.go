package id

import (
	"time"

	fid "github.com/amterp/flexid"
	"github.com/google/uuid"
)

// Kind is the prefix that tells an ID's entity type at a glance.
type Kind string

const (
	Board Kind = "b"
	Group Kind = "g"
	Item  Kind = "i"
)

var generator *fid.Generator

func init() {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	config := fid.NewConfig().
		WithEpoch(epoch).
		WithTickSize(10 * time.Millisecond).
		WithNumRandomChars(3)

	generator = fid.MustNewGenerator(config)
}

// Generate returns a new unique, roughly time-sortable ID for the given kind.
func Generate(kind Kind) string {
	return string(kind) + "_" + generator.MustGenerate()
}

// Batch returns a fresh batch identifier. Batch IDs are dedupe keys and
// must be unique across processes, so they are random rather than
// time-based.
func Batch() string {
	return uuid.NewString()
}

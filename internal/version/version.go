package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current schema versions. Bump on breaking file-format changes and add the
// new identifier to MinKanflowVersion.
const (
	CurrentItemVersion    = 1
	CurrentBoardVersion   = 1
	CurrentProjectVersion = 1
)

// Schema is a versioned file family, written as "<family>/<N>".
type Schema string

const (
	BoardSchema   Schema = "board"
	ProjectSchema Schema = "project"
)

// MinKanflowVersion maps schema identifiers to the first kanflow release
// that can read them.
var MinKanflowVersion = map[string]string{
	"item/1":    "0.1.0",
	"board/1":   "0.1.0",
	"project/1": "0.1.0",
}

// Format renders a schema identifier, e.g. BoardSchema.Format(1) = "board/1".
func (s Schema) Format(v int) string {
	return fmt.Sprintf("%s/%d", s, v)
}

// Current returns the schema identifier this build writes.
func (s Schema) Current() string {
	return s.Format(s.currentVersion())
}

// Parse extracts the version number from a schema identifier.
func (s Schema) Parse(schema string) (int, error) {
	prefix := string(s) + "/"
	if !strings.HasPrefix(schema, prefix) {
		return 0, fmt.Errorf("invalid %s schema format: %q (expected %sN)", s, schema, prefix)
	}
	versionStr := strings.TrimPrefix(schema, prefix)
	v, err := strconv.Atoi(versionStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s schema version: %q", s, versionStr)
	}
	if v < 1 {
		return 0, fmt.Errorf("invalid %s schema version: %d (must be >= 1)", s, v)
	}
	return v, nil
}

// Check validates a schema string read from path. It returns nil when the
// file is readable by this build.
func (s Schema) Check(path, found string) error {
	if found == "" {
		return &SchemaVersionError{FileType: string(s), FilePath: path, Found: "missing", Expected: s.Current()}
	}
	v, err := s.Parse(found)
	if err == nil && v == s.currentVersion() {
		return nil
	}
	e := &SchemaVersionError{FileType: string(s), FilePath: path, Found: found, Expected: s.Current()}
	if err == nil && v > s.currentVersion() {
		e.MinRequired = minRequired(found)
	}
	return e
}

func (s Schema) currentVersion() int {
	switch s {
	case BoardSchema:
		return CurrentBoardVersion
	case ProjectSchema:
		return CurrentProjectVersion
	}
	return 0
}

// CheckItem validates the _v field of an item file.
func CheckItem(path string, found int) error {
	if found == 0 {
		return &SchemaVersionError{FileType: "item", FilePath: path, Found: "missing", Expected: strconv.Itoa(CurrentItemVersion)}
	}
	if found == CurrentItemVersion {
		return nil
	}
	e := &SchemaVersionError{FileType: "item", FilePath: path, Found: strconv.Itoa(found), Expected: strconv.Itoa(CurrentItemVersion)}
	if found > CurrentItemVersion {
		e.MinRequired = minRequired(fmt.Sprintf("item/%d", found))
	}
	return e
}

func minRequired(key string) string {
	if v, ok := MinKanflowVersion[key]; ok {
		return v
	}
	return "a newer version"
}

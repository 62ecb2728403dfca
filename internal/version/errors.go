package version

import (
	"errors"
	"fmt"
)

// SchemaVersionError indicates a schema version problem during file read/write.
type SchemaVersionError struct {
	FileType    string // "item", "board", "project"
	FilePath    string
	Found       string // "missing", "2", "board/2"
	Expected    string
	MinRequired string // Minimum kanflow version required, if an upgrade is needed
}

func (e *SchemaVersionError) Error() string {
	if e.MinRequired != "" {
		return fmt.Sprintf(
			"%s schema %s requires kanflow >= %s (file: %s, supports up to: %s)",
			e.FileType, e.Found, e.MinRequired, e.FilePath, e.Expected,
		)
	}
	if e.Found == "missing" {
		return fmt.Sprintf("%s has no schema version (file: %s)", e.FileType, e.FilePath)
	}
	return fmt.Sprintf(
		"%s has invalid schema version: found %s, expected %s (file: %s)",
		e.FileType, e.Found, e.Expected, e.FilePath,
	)
}

// IsSchemaError reports whether err is, or wraps, a SchemaVersionError.
func IsSchemaError(err error) bool {
	var se *SchemaVersionError
	return errors.As(err, &se)
}

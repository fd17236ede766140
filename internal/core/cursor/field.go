package cursor

import (
	"strings"

	"github.com/vietddude/partsync/internal/core/domain"
)

// CursorField locates the cursor value inside a record.
type CursorField struct {
	// Key is the name the value is stored under in cursor state.
	Key string
	// Path is the location inside the record; defaults to [Key].
	Path []string
}

// NewCursorField creates a cursor field. Dotted names address nested values,
// the state key is the last path element.
func NewCursorField(name string) CursorField {
	path := strings.Split(name, ".")
	return CursorField{Key: path[len(path)-1], Path: path}
}

// Extract returns the raw cursor value of a record, false when absent or null.
func (f CursorField) Extract(record domain.Record) (any, bool) {
	path := f.Path
	if len(path) == 0 {
		path = []string{f.Key}
	}

	var current any = record.Data
	for _, p := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

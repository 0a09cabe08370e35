package sourcemap

import (
	"fmt"

	gosourcemap "github.com/go-sourcemap/sourcemap"
)

// Map is a parsed source map document. It is immutable once built, so a
// reload constructs a new Map rather than mutating the installed one.
type Map struct {
	consumer *gosourcemap.Consumer
}

// ParseMap parses a source map JSON document into a queryable Map.
func ParseMap(data []byte) (*Map, error) {
	consumer, err := gosourcemap.Parse("", data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source map: %w", err)
	}
	return &Map{consumer: consumer}, nil
}

// File returns the generated file name recorded in the map, if any.
func (m *Map) File() string {
	return m.consumer.File()
}

// OriginalPositionFor looks up the original position for a generated
// 1-indexed line and column. Positions without an original source count
// as not found.
func (m *Map) OriginalPositionFor(line, column int) (Position, bool) {
	source, name, origLine, origColumn, ok := m.consumer.Source(line, column)
	if !ok || source == "" || origLine <= 0 {
		return Position{}, false
	}
	return Position{
		Source: source,
		Line:   origLine,
		Column: origColumn,
		Name:   name,
	}, true
}

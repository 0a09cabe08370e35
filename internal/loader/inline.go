package loader

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoInlineMap is returned when a source file carries no embedded map.
var ErrNoInlineMap = errors.New("no sourcemap in file")

var inlineMarker = regexp.MustCompile(`//[@#]\s*sourceMappingURL=data:application/json(?:;charset=[^;,\s]+)?;base64,([A-Za-z0-9+/=]+)`)

// ExtractInlineMap finds the last base64 sourceMappingURL data marker in
// content and returns the decoded map document.
func ExtractInlineMap(content string) ([]byte, error) {
	matches := inlineMarker.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil, ErrNoInlineMap
	}
	payload := matches[len(matches)-1][1]

	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode inline source map: %w", err)
	}
	return data, nil
}

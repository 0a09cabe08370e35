package sourcemap

import (
	"fmt"
	"strings"
)

const anonymousFunction = "(anonymous function)"

// FormatStackFrame formats a single stack frame as "  at fn (file:line:column)"
func FormatStackFrame(frame StackFrame) string {
	functionName := frame.FunctionName
	if functionName == "" {
		functionName = anonymousFunction
	}

	if frame.IsNative {
		return fmt.Sprintf("  at %s (native)", functionName)
	}

	return fmt.Sprintf("  at %s (%s:%d:%d)", functionName, frame.FileName, frame.LineNumber, frame.ColumnNumber)
}

// FormatStackTrace formats stack frames into a complete stack trace, one line per frame
func FormatStackTrace(frames []StackFrame) string {
	lines := make([]string, len(frames))
	for i, frame := range frames {
		lines[i] = FormatStackFrame(frame)
	}
	return strings.Join(lines, "\n")
}

// FormatWithMetadata formats with a mapping status marker per line (for debugging).
// mark decorates the marker, letting callers colorize it; nil leaves it plain.
func FormatWithMetadata(frames []StackFrame, mark func(mapped bool, status string) string) string {
	lines := make([]string, len(frames))
	for i, frame := range frames {
		status := "✗ unmapped"
		if frame.Mapped {
			status = "✓ mapped"
		}
		if mark != nil {
			status = mark(frame.Mapped, status)
		}
		lines[i] = fmt.Sprintf("%s %s", FormatStackFrame(frame), status)
	}
	return strings.Join(lines, "\n")
}

package sourcemap

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nativePattern = regexp.MustCompile(`at\s+(.+?)\s+\(native\)`)
	// at functionName (file:line:column)
	v8CallPattern = regexp.MustCompile(`^at\s+(.+?)\s+\((.+?):(\d+):(\d+)\)$`)
	// at file:line:column
	v8BarePattern = regexp.MustCompile(`^at\s+(.+?):(\d+):(\d+)$`)
	// functionName@file:line:column
	geckoPattern = regexp.MustCompile(`^([^@\s]*)@(.+?):(\d+):(\d+)$`)
	// file:line:column
	locationPattern = regexp.MustCompile(`^(\S+?):(\d+):(\d+)$`)
)

// ParseStackTrace parses a full stack trace (multiple lines) into stack frames.
// Lines that are not frames, such as the leading "Error: message" line, are skipped.
func ParseStackTrace(stackTrace string) []StackFrame {
	lines := strings.Split(stackTrace, "\n")
	frames := make([]StackFrame, 0, len(lines))

	for _, line := range lines {
		if frame, ok := ParseStackLine(line); ok {
			frames = append(frames, frame)
		}
	}

	return frames
}

// ParseStackLine parses a single line from a stack trace
// Handles formats like:
// - at functionName (file:line:column)
// - at file:line:column
// - at functionName (native)
// - functionName@file:line:column
// - file:line:column
func ParseStackLine(line string) (StackFrame, bool) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if trimmed == "" {
		return StackFrame{}, false
	}

	if strings.HasSuffix(trimmed, "(native)") {
		frame := StackFrame{Raw: line, FileName: "native", IsNative: true}
		if m := nativePattern.FindStringSubmatch(trimmed); m != nil {
			frame.FunctionName = m[1]
		}
		return frame, true
	}

	if m := v8CallPattern.FindStringSubmatch(trimmed); m != nil {
		return newFrame(line, m[1], m[2], m[3], m[4]), true
	}

	if m := v8BarePattern.FindStringSubmatch(trimmed); m != nil {
		return newFrame(line, "", m[1], m[2], m[3]), true
	}

	if m := geckoPattern.FindStringSubmatch(trimmed); m != nil {
		return newFrame(line, m[1], m[2], m[3], m[4]), true
	}

	if m := locationPattern.FindStringSubmatch(trimmed); m != nil {
		return newFrame(line, "", m[1], m[2], m[3]), true
	}

	return StackFrame{}, false
}

func newFrame(raw, function, file, line, column string) StackFrame {
	lineNum, _ := strconv.Atoi(line)
	colNum, _ := strconv.Atoi(column)
	return StackFrame{
		Raw:          raw,
		FunctionName: function,
		FileName:     file,
		LineNumber:   lineNum,
		ColumnNumber: colNum,
	}
}

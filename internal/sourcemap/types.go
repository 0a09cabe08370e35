package sourcemap

// StackFrame represents a single stack frame parsed from a stack trace.
// The resolver rewrites it in place when a source map covers its position.
type StackFrame struct {
	// The raw original line from the stack trace
	Raw string
	// Function name, empty for anonymous frames
	FunctionName string
	// Source file path or URL
	FileName string
	// Line number (1-indexed), zero if not available
	LineNumber int
	// Column number as reported by the engine, zero if not available
	ColumnNumber int
	// Whether this is a native call
	IsNative bool
	// Whether the resolver rewrote this frame from a source map
	Mapped bool
}

// Position is an original source location recorded in a source map.
type Position struct {
	Source string
	Line   int
	Column int
	// Original symbol name, empty when the map records none
	Name string
}

// Mapping answers original-position queries for one generated file.
type Mapping interface {
	// OriginalPositionFor returns the original position for a generated
	// line and column. ok is false when the map has no usable mapping.
	OriginalPositionFor(line, column int) (pos Position, ok bool)
}

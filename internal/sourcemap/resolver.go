package sourcemap

// Resolver rewrites stack frames to original source positions using the
// maps currently installed in a Registry.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver reading from registry
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve rewrites each frame in place and returns the same slice. Frames
// without a registry entry, or whose position the map cannot answer, are
// left untouched; one bad frame never stops the others.
func (r *Resolver) Resolve(frames []StackFrame) []StackFrame {
	for i := range frames {
		r.resolveFrame(&frames[i])
	}
	return frames
}

func (r *Resolver) resolveFrame(frame *StackFrame) {
	if frame.IsNative || frame.FileName == "" {
		return
	}

	m, ok := r.registry.Get(Key(frame.FileName))
	if !ok {
		return
	}

	pos, ok := lookup(m, frame.LineNumber, frame.ColumnNumber)
	if !ok {
		return
	}

	frame.FileName = pos.Source
	frame.LineNumber = pos.Line
	frame.ColumnNumber = pos.Column
	if pos.Name != "" {
		frame.FunctionName = pos.Name
	}
	frame.Mapped = true
}

// lookup queries m, treating a panicking query as no mapping.
func lookup(m Mapping, line, column int) (pos Position, ok bool) {
	defer func() {
		if recover() != nil {
			pos, ok = Position{}, false
		}
	}()
	return m.OriginalPositionFor(line, column)
}

package graph

import "fmt"

// BuildError is any of the fatal, build-time errors spec §7 enumerates:
// missing referenced component, missing operation, unknown port, missing
// required connection, unused output (specifically core::sender), or a
// configuration schema mismatch. The interpreter refuses to start a graph
// that fails to build (spec §4.2).
type BuildError struct {
	Schematic string
	Node      string
	Reason    string
}

func (e *BuildError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("schematic %q, node %q: %s", e.Schematic, e.Node, e.Reason)
	}
	return fmt.Sprintf("schematic %q: %s", e.Schematic, e.Reason)
}

func buildErr(schematic, node, format string, args ...any) *BuildError {
	return &BuildError{Schematic: schematic, Node: node, Reason: fmt.Sprintf(format, args...)}
}

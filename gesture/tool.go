package gesture

import "fmt"

// Tool is the active interaction tool. Selecting it is up to the caller.
type Tool uint8

// Tools.
const (
	ToolPan Tool = iota
	ToolZoom
	ToolWindowing
	ToolMeasure
	ToolAnnotate
)

var toolNames = [...]string{"pan", "zoom", "windowing", "measure", "annotate"}

func (t Tool) String() string {
	if int(t) < len(toolNames) {
		return toolNames[t]
	}
	return fmt.Sprintf("Tool(%d)", t)
}

// ParseTool parses a tool name as produced by String.
func ParseTool(s string) (Tool, error) {
	for i, n := range toolNames {
		if n == s {
			return Tool(i), nil
		}
	}
	return 0, fmt.Errorf("gesture: unknown tool %q", s)
}

// navigates reports whether the tool lets gestures move the view.
func (t Tool) navigates() bool {
	return t == ToolPan || t == ToolZoom || t == ToolWindowing
}

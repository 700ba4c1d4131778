package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const optionHandlePrefix = "option-"

// Edge is a directed connection between two steps.
// A SourceHandle of the form "option-<i>" binds the edge to the i-th
// option of the source step; an edge without a handle is the source
// step's default successor.
type Edge struct {
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
}

// OptionHandle builds the handle string binding an edge to option i.
func OptionHandle(i int) string {
	return fmt.Sprintf("%s%d", optionHandlePrefix, i)
}

// OptionIndex parses the edge's handle. It returns the bound option
// index, or false when the edge is a default (handle-less) edge or the
// handle is not option-shaped.
func (e Edge) OptionIndex() (int, bool) {
	if !strings.HasPrefix(e.SourceHandle, optionHandlePrefix) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(e.SourceHandle, optionHandlePrefix))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// IsDefault reports whether the edge is the handle-less default successor.
func (e Edge) IsDefault() bool {
	return e.SourceHandle == ""
}

package tree

import (
	"bytes"
	"fmt"
	"io"
)

// RenderOptions controls text rendering
type RenderOptions struct {
	ShowInactive bool
	ShowIDs      bool
}

// Render writes the tree as indented text:
//
//	Guarnição [017]
//	├── Arroz
//	└── Farofas (inactive)
func Render(w io.Writer, ix *Index, opts RenderOptions) error {
	roots := ix.collect("", opts.ShowInactive)
	for _, root := range roots {
		if _, err := fmt.Fprintln(w, label(root.Name, root.Code, root.ID, root.Active, opts)); err != nil {
			return err
		}
		if err := renderChildren(w, ix, root.ID, "", opts); err != nil {
			return err
		}
	}
	return nil
}

// RenderString renders into a string
func RenderString(ix *Index, opts RenderOptions) string {
	var buf bytes.Buffer
	_ = Render(&buf, ix, opts)
	return buf.String()
}

func renderChildren(w io.Writer, ix *Index, parentID, prefix string, opts RenderOptions) error {
	children := ix.collect(parentID, opts.ShowInactive)
	for i, c := range children {
		branch, indent := "├── ", "│   "
		if i == len(children)-1 {
			branch, indent = "└── ", "    "
		}
		if _, err := fmt.Fprintln(w, prefix+branch+label(c.Name, c.Code, c.ID, c.Active, opts)); err != nil {
			return err
		}
		if err := renderChildren(w, ix, c.ID, prefix+indent, opts); err != nil {
			return err
		}
	}
	return nil
}

func label(name, code, id string, active bool, opts RenderOptions) string {
	s := name
	if code != "" {
		s += " [" + code + "]"
	}
	if opts.ShowIDs {
		s += " " + id
	}
	if !active {
		s += " (inactive)"
	}
	return s
}

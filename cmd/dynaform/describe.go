package main

import (
	"encoding/json"
	"fmt"
	"sort"

	glamour "charm.land/glamour/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/dynaform/core/internal/deps"
	"github.com/dynaform/core/internal/types"
)

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

// renderSchemaDescription prints sc's description as Markdown (via
// charm.land/glamour/v2) and its attribute tree as lipgloss-styled rows
// (see renderTable), coloring the state with muesli/termenv the way the
// teacher colors issue status in its TUI.
func renderSchemaDescription(sc *types.Schema) error {
	fmt.Println(headerStyle.Render(fmt.Sprintf("%s  (%s)", sc.Name, stateColor(sc.State))))
	if sc.Title != "" {
		fmt.Println(sc.Title)
	}
	if sc.Description != "" {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
		if err == nil {
			if out, err := r.Render(sc.Description); err == nil {
				fmt.Print(out)
			} else {
				fmt.Println(sc.Description)
			}
		} else {
			fmt.Println(sc.Description)
		}
	}

	attrs := deps.WalkAttributes(sc.AttributesInOrder())
	rows := make([][]string, 0, len(attrs))
	for _, a := range attrs {
		priv := ""
		if a.IsPrivate {
			priv = "private"
		}
		rows = append(rows, []string{a.Name, string(a.Type), priv})
	}
	fmt.Println(renderTable([]string{"attribute", "type", ""}, rows))
	return nil
}

func stateColor(s types.SchemaState) string {
	p := termenv.ColorProfile()
	var c termenv.Color
	switch s {
	case types.SchemaPublished:
		c = p.Color("2")
	case types.SchemaRetracted:
		c = p.Color("1")
	default:
		c = p.Color("3")
	}
	return termenv.String(string(s)).Foreground(c).String()
}

// renderTable draws a header line and one line per row, cells separated by
// two spaces and each line styled with lipgloss. Columns are not padded to
// a common width and lines are not wrapped or cut to the terminal width.
// `dynaform report show` renders through the same function.
func renderTable(header []string, rows [][]string) string {
	var b []string
	b = append(b, headerStyle.Render(joinCells(header)))
	for _, r := range rows {
		b = append(b, dimStyle.Render(joinCells(r)))
	}
	out := ""
	for i, line := range b {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}

func joinCells(cells []string) string {
	out := ""
	for i, c := range cells {
		if i > 0 {
			out += "  "
		}
		out += c
	}
	return out
}

// schemaDiff is the structural diff `schema diff` renders (SPEC_FULL.md §10).
type schemaDiff struct {
	From, To             types.ID
	Added, Removed       []string
	Retyped              []attributeRetype
	ChecksumsChanged     []string
}

type attributeRetype struct {
	Name     string
	FromType types.AttributeType
	ToType   types.AttributeType
}

func diffSchemas(from, to *types.Schema) schemaDiff {
	fromAttrs := map[string]*types.Attribute{}
	for _, a := range deps.WalkAttributes(from.AttributesInOrder()) {
		fromAttrs[a.Name] = a
	}
	toAttrs := map[string]*types.Attribute{}
	for _, a := range deps.WalkAttributes(to.AttributesInOrder()) {
		toAttrs[a.Name] = a
	}

	d := schemaDiff{From: from.ID, To: to.ID}
	for name, a := range toAttrs {
		prev, existed := fromAttrs[name]
		if !existed {
			d.Added = append(d.Added, name)
			continue
		}
		if prev.Type != a.Type {
			d.Retyped = append(d.Retyped, attributeRetype{Name: name, FromType: prev.Type, ToType: a.Type})
		}
		if prev.Checksum != a.Checksum {
			d.ChecksumsChanged = append(d.ChecksumsChanged, name)
		}
	}
	for name := range fromAttrs {
		if _, stillPresent := toAttrs[name]; !stillPresent {
			d.Removed = append(d.Removed, name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.ChecksumsChanged)
	sort.Slice(d.Retyped, func(i, j int) bool { return d.Retyped[i].Name < d.Retyped[j].Name })
	return d
}

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dynaform/core/internal/report"
	"github.com/dynaform/core/internal/types"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	Short:   "Build and render reports over a schema's entities",
	GroupID: groupReport,
}

type reportFlags struct {
	name              string
	ids               []string
	attributes        []string
	expandCollections bool
	useChoiceLabels   bool
	ignorePrivate     bool
	context           string
}

func (f reportFlags) options() (report.Options, error) {
	opts := report.Options{
		Attributes:        f.attributes,
		ExpandCollections: f.expandCollections,
		UseChoiceLabels:   f.useChoiceLabels,
		IgnorePrivate:     f.ignorePrivate,
		Context:           f.context,
	}
	for _, s := range f.ids {
		id, err := parseID(s)
		if err != nil {
			return opts, err
		}
		opts.IDs = append(opts.IDs, id)
	}
	return opts, nil
}

func registerReportFlags(cmd *cobra.Command, f *reportFlags) {
	cmd.Flags().StringVar(&f.name, "name", "", "schema (report) name")
	cmd.Flags().StringSliceVar(&f.ids, "ids", nil, "restrict to these entity ids")
	cmd.Flags().StringSliceVar(&f.attributes, "attributes", nil, "restrict to these column names")
	cmd.Flags().BoolVar(&f.expandCollections, "expand-collections", false, "split a collection-of-choices column into one column per code")
	cmd.Flags().BoolVar(&f.useChoiceLabels, "use-choice-labels", false, "render choice labels instead of codes")
	cmd.Flags().BoolVar(&f.ignorePrivate, "ignore-private", false, "redact private attributes as [PRIVATE]")
	cmd.Flags().StringVar(&f.context, "context", "", "context key to join as a context_key column")
	_ = cmd.MarkFlagRequired("name")
}

var reportBuildFlags reportFlags

var reportBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a report and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := reportBuildFlags.options()
		if err != nil {
			return err
		}
		rep, err := eng.BuildReport(rootCtx, reportBuildFlags.name, opts)
		if err != nil {
			return err
		}
		return printJSON(rep)
	},
}

var reportShowFlags reportFlags

var reportShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Build a report and render it as a terminal table",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := reportShowFlags.options()
		if err != nil {
			return err
		}
		rep, err := eng.BuildReport(rootCtx, reportShowFlags.name, opts)
		if err != nil {
			return err
		}
		fmt.Print(renderReportTable(rep))
		return nil
	},
}

// renderReportTable draws rep through describe.go's renderTable, one line
// per row, rows sorted by their first cell. The terminal's column count is
// read with golang.org/x/term, but the output is the same either way: wide
// reports print in full. The "state" column is passed through termenv
// without a foreground color, so it prints as plain text.
func renderReportTable(rep *report.Report) string {
	width := 120
	if w, _, err := term.GetSize(0); err == nil && w > 0 {
		width = w
	}

	rows := make([][]string, 0, len(rep.Rows))
	for _, row := range rep.Rows {
		cells := make([]string, len(rep.Columns))
		for i, col := range rep.Columns {
			cells[i] = formatCell(col, row[col])
		}
		rows = append(rows, cells)
	}
	sort.Slice(rows, func(i, j int) bool {
		if len(rows[i]) == 0 || len(rows[j]) == 0 {
			return false
		}
		return rows[i][0] < rows[j][0]
	})

	table := renderTable(rep.Columns, rows)
	if len(table) > width*2 {
		// Wide reports still print in full; truncation would silently drop
		// data the caller asked for.
		return table + "\n"
	}
	return table + "\n"
}

func formatCell(col string, v any) string {
	if v == nil {
		return ""
	}
	if col == "state" {
		if s, ok := v.(types.EntityState); ok {
			return termenv.String(string(s)).String()
		}
	}
	s := fmt.Sprintf("%v", v)
	return strings.TrimSpace(s)
}

func init() {
	registerReportFlags(reportBuildCmd, &reportBuildFlags)
	registerReportFlags(reportShowCmd, &reportShowFlags)
	reportCmd.AddCommand(reportBuildCmd, reportShowCmd)
	rootCmd.AddCommand(reportCmd)
}

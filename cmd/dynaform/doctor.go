package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dynaform/core/internal/deps"
	"github.com/dynaform/core/internal/idgen"
)

// doctorCheck mirrors the teacher's diagnostic-command shape (cmd/bd's
// doctorCheck/doctorResult): a flat list of named checks with a status and
// message, rather than a free-form log, so --json output stays stable for
// scripting.
type doctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type doctorResult struct {
	Checks    []doctorCheck `json:"checks"`
	OverallOK bool          `json:"overall_ok"`
}

const (
	doctorOK    = "ok"
	doctorError = "error"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Short:   "Recompute every attribute's checksum and report mismatches",
	GroupID: groupAdmin,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := runDoctor()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		for _, c := range result.Checks {
			fmt.Printf("[%s] %s: %s\n", c.Status, c.Name, c.Message)
		}
		if !result.OverallOK {
			return fmt.Errorf("doctor found %d corrupt attribute checksum(s)", countErrors(result))
		}
		return nil
	},
}

func countErrors(r *doctorResult) int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == doctorError {
			n++
		}
	}
	return n
}

// runDoctor recomputes the checksum of every attribute reachable from every
// schema version known to the store (spec.md §7's CorruptAttributeError,
// SPEC_FULL.md §10's doctor supplement). The walk descends into sections and
// checks their children; a section attribute's own checksum is not checked.
func runDoctor() (*doctorResult, error) {
	names, err := eng.Schemas.Keys(rootCtx)
	if err != nil {
		return nil, err
	}

	result := &doctorResult{OverallOK: true}
	for _, name := range names {
		versions, err := eng.Store.ListSchemaVersions(rootCtx, name)
		if err != nil {
			return nil, err
		}
		for _, sc := range versions {
			for _, a := range deps.WalkAttributes(sc.AttributesInOrder()) {
				ok, recomputed := idgen.VerifyAttribute(sc.Name, a)
				if ok {
					result.Checks = append(result.Checks, doctorCheck{
						Name:    fmt.Sprintf("%s@%d/%s", sc.Name, sc.ID, a.Name),
						Status:  doctorOK,
						Message: "checksum matches",
					})
					continue
				}
				result.OverallOK = false
				result.Checks = append(result.Checks, doctorCheck{
					Name:    fmt.Sprintf("%s@%d/%s", sc.Name, sc.ID, a.Name),
					Status:  doctorError,
					Message: fmt.Sprintf("stored checksum %s does not match recomputed %s", a.Checksum, recomputed),
				})
			}
		}
	}
	return result, nil
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

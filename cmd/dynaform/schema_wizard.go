package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dynaform/core/internal/types"
)

var schemaWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactively build a draft schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := &types.Schema{State: types.SchemaDraft, Attributes: map[string]*types.Attribute{}}

		if err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Schema name").Validate(huh.ValidateNotEmpty()).Value(&sc.Name),
			huh.NewInput().Title("Title").Value(&sc.Title),
			huh.NewText().Title("Description").Value(&sc.Description),
		)).Run(); err != nil {
			return fmt.Errorf("wizard: %w", err)
		}

		order := 0
		for {
			var addMore bool
			if err := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().Title("Add an attribute?").Value(&addMore),
			)).Run(); err != nil {
				return fmt.Errorf("wizard: %w", err)
			}
			if !addMore {
				break
			}

			a := &types.Attribute{Order: order}
			var attrType string
			if err := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Attribute name").Validate(huh.ValidateNotEmpty()).Value(&a.Name),
				huh.NewInput().Title("Attribute title").Value(&a.Title),
				huh.NewSelect[string]().Title("Type").Options(
					huh.NewOption("string", string(types.TypeString)),
					huh.NewOption("text", string(types.TypeText)),
					huh.NewOption("integer", string(types.TypeInteger)),
					huh.NewOption("number", string(types.TypeNumber)),
					huh.NewOption("decimal", string(types.TypeDecimal)),
					huh.NewOption("boolean", string(types.TypeBoolean)),
					huh.NewOption("date", string(types.TypeDate)),
					huh.NewOption("datetime", string(types.TypeDateTime)),
					huh.NewOption("choice", string(types.TypeChoice)),
					huh.NewOption("section", string(types.TypeSection)),
				).Value(&attrType),
			)).Run(); err != nil {
				return fmt.Errorf("wizard: %w", err)
			}
			a.Type = types.AttributeType(attrType)
			sc.Attributes[a.Name] = a
			order++
		}

		if err := eng.PutSchema(rootCtx, sc); err != nil {
			return err
		}
		fmt.Printf("created schema %q (id %d) with %d attribute(s)\n", sc.Name, sc.ID, len(sc.Attributes))
		return nil
	},
}

// parseID converts a CLI numeric argument to types.ID, the shared helper
// entity.go and report.go flags use for --id/--ids parsing.
func parseID(s string) (types.ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return types.ID(n), nil
}

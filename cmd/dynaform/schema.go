package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/dynaform/core/internal/types"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	Short:   "Author and inspect form schemata",
	GroupID: groupSchema,
}

// attributeFile is the on-disk shape `schema create --file` parses, one
// entry per declared attribute. It mirrors types.Attribute's public fields
// loosely enough to hand-author in a text editor rather than forcing a
// caller to round-trip through Go struct tags that don't exist in the spec.
type attributeFile struct {
	Name          string          `json:"name"`
	Title         string          `json:"title"`
	Type          string          `json:"type"`
	Order         int             `json:"order"`
	IsCollection  *bool           `json:"is_collection,omitempty"`
	IsRequired    *bool           `json:"is_required,omitempty"`
	IsPrivate     bool            `json:"is_private,omitempty"`
	Validator     string          `json:"validator,omitempty"`
	Choices       []choiceFile    `json:"choices,omitempty"`
	Attributes    []attributeFile `json:"attributes,omitempty"` // nested, for type: section
}

type choiceFile struct {
	Value string `json:"value"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

type schemaFile struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Attributes  []attributeFile `json:"attributes"`
}

func (af attributeFile) toAttribute() *types.Attribute {
	a := &types.Attribute{
		Metadata:     types.Metadata{Name: af.Name, Title: af.Title},
		Type:         types.AttributeType(af.Type),
		Order:        af.Order,
		IsCollection: af.IsCollection,
		IsRequired:   af.IsRequired,
		IsPrivate:    af.IsPrivate,
		Validator:    af.Validator,
	}
	for _, c := range af.Choices {
		a.Choices = append(a.Choices, &types.Choice{
			Metadata: types.Metadata{Title: c.Title},
			Value:    c.Value,
			Order:    c.Order,
		})
	}
	if len(af.Attributes) > 0 {
		a.Attributes = make(map[string]*types.Attribute, len(af.Attributes))
		for _, child := range af.Attributes {
			a.Attributes[child.Name] = child.toAttribute()
		}
	}
	return a
}

func loadSchemaFile(path string) (*types.Schema, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied CLI argument
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var sf schemaFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	sc := &types.Schema{
		Metadata:   types.Metadata{Name: sf.Name, Title: sf.Title, Description: sf.Description},
		State:      types.SchemaDraft,
		Attributes: make(map[string]*types.Attribute, len(sf.Attributes)),
	}
	for _, a := range sf.Attributes {
		sc.Attributes[a.Name] = a.toAttribute()
	}
	return sc, nil
}

var schemaCreateFile string

var schemaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new draft schema from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := loadSchemaFile(schemaCreateFile)
		if err != nil {
			return err
		}
		if err := eng.PutSchema(rootCtx, sc); err != nil {
			return err
		}
		fmt.Printf("created schema %q (id %d, state %s)\n", sc.Name, sc.ID, sc.State)
		return nil
	},
}

var schemaPublishName string

var schemaPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the latest draft version of a schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		versions, err := eng.Store.ListSchemaVersions(rootCtx, schemaPublishName)
		if err != nil {
			return err
		}
		var draft *types.Schema
		for _, v := range versions {
			if v.State == types.SchemaDraft || v.State == types.SchemaReview {
				draft = v
			}
		}
		if draft == nil {
			return fmt.Errorf("no draft or review version of %q found", schemaPublishName)
		}
		if err := draft.Publish(time.Now()); err != nil {
			return err
		}
		if err := eng.PutSchema(rootCtx, draft); err != nil {
			return err
		}
		fmt.Printf("published %q as of %s\n", schemaPublishName, draft.PublishDate.Format("2006-01-02"))
		return nil
	},
}

var schemaRetractName string

var schemaRetractCmd = &cobra.Command{
	Use:   "retract",
	Short: "Retract the currently published version of a schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := eng.Schemas.Get(rootCtx, schemaRetractName, nil)
		if err != nil {
			return err
		}
		if err := sc.Retract(time.Now()); err != nil {
			return err
		}
		return eng.PutSchema(rootCtx, sc)
	},
}

var (
	schemaGetName string
	schemaGetOn   string
)

var schemaGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the published version of a schema in effect on a given date",
	RunE: func(cmd *cobra.Command, args []string) error {
		var on *time.Time
		if schemaGetOn != "" {
			t, err := parseNaturalDate(schemaGetOn)
			if err != nil {
				return err
			}
			on = &t
		}
		sc, err := eng.Schemas.Get(rootCtx, schemaGetName, on)
		if err != nil {
			return err
		}
		return printJSON(sc)
	},
}

// parseNaturalDate resolves strings like "last tuesday" via
// github.com/olebedev/when, the same library the teacher uses to parse
// natural-language due dates.
func parseNaturalDate(s string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not parse date %q", s)
	}
	return r.Time, nil
}

var schemaDescribeName string

var schemaDescribeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Render a schema's attribute tree and description",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := eng.Schemas.Get(rootCtx, schemaDescribeName, nil)
		if err != nil {
			return err
		}
		return renderSchemaDescription(sc)
	},
}

var (
	schemaDiffName string
	schemaDiffFrom int64
	schemaDiffTo   int64
)

var schemaDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Structurally diff two published versions of a schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := eng.Store.GetSchema(rootCtx, types.ID(schemaDiffFrom))
		if err != nil {
			return fmt.Errorf("loading --from: %w", err)
		}
		to, err := eng.Store.GetSchema(rootCtx, types.ID(schemaDiffTo))
		if err != nil {
			return fmt.Errorf("loading --to: %w", err)
		}
		d := diffSchemas(from, to)
		return printJSON(d)
	},
}

func init() {
	schemaCreateCmd.Flags().StringVar(&schemaCreateFile, "file", "", "path to a schema JSON file")
	_ = schemaCreateCmd.MarkFlagRequired("file")

	schemaPublishCmd.Flags().StringVar(&schemaPublishName, "name", "", "schema name")
	_ = schemaPublishCmd.MarkFlagRequired("name")

	schemaRetractCmd.Flags().StringVar(&schemaRetractName, "name", "", "schema name")
	_ = schemaRetractCmd.MarkFlagRequired("name")

	schemaGetCmd.Flags().StringVar(&schemaGetName, "name", "", "schema name")
	schemaGetCmd.Flags().StringVar(&schemaGetOn, "on", "", "as-of date, natural language (e.g. \"last tuesday\")")
	_ = schemaGetCmd.MarkFlagRequired("name")

	schemaDescribeCmd.Flags().StringVar(&schemaDescribeName, "name", "", "schema name")
	_ = schemaDescribeCmd.MarkFlagRequired("name")

	schemaDiffCmd.Flags().StringVar(&schemaDiffName, "name", "", "schema name (for display only)")
	schemaDiffCmd.Flags().Int64Var(&schemaDiffFrom, "from", 0, "from schema version id")
	schemaDiffCmd.Flags().Int64Var(&schemaDiffTo, "to", 0, "to schema version id")
	_ = schemaDiffCmd.MarkFlagRequired("from")
	_ = schemaDiffCmd.MarkFlagRequired("to")

	schemaCmd.AddCommand(schemaCreateCmd, schemaPublishCmd, schemaRetractCmd, schemaGetCmd, schemaDescribeCmd, schemaDiffCmd, schemaWizardCmd)
	rootCmd.AddCommand(schemaCmd)
}

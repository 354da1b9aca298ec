package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dynaform/core/internal/engine"
	"github.com/dynaform/core/internal/types"
)

var entityCmd = &cobra.Command{
	Use:     "entity",
	Short:   "Create and inspect entities",
	GroupID: groupEntity,
}

var entityCreateSchema string

var entityCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an entity against a published schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := eng.Schemas.Get(rootCtx, entityCreateSchema, nil)
		if err != nil {
			return err
		}
		ent := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
		if err := eng.PutEntity(rootCtx, ent); err != nil {
			return err
		}
		fmt.Printf("created entity %d (schema %q, id %d)\n", ent.ID, sc.Name, sc.ID)
		return nil
	},
}

var entityGetID string

var entityGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print an entity and its values",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(entityGetID)
		if err != nil {
			return err
		}
		ent, err := eng.Store.GetEntity(rootCtx, id)
		if err != nil {
			return err
		}
		values, err := eng.Store.GetValues(rootCtx, id)
		if err != nil {
			return err
		}
		return printJSON(struct {
			Entity *types.Entity       `json:"entity"`
			Values []types.EntityValue `json:"values"`
		}{ent, values})
	},
}

var (
	entitySetID    string
	entitySetAttr  string
	entitySetValue string
)

var entitySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set one attribute's value on an entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(entitySetID)
		if err != nil {
			return err
		}
		ent, err := eng.Store.GetEntity(rootCtx, id)
		if err != nil {
			return err
		}
		sc, err := eng.Store.GetSchema(rootCtx, ent.SchemaID)
		if err != nil {
			return err
		}
		attr, ok := sc.Attributes[entitySetAttr]
		if !ok {
			return fmt.Errorf("schema %q has no attribute %q at its top level", sc.Name, entitySetAttr)
		}

		v, err := parseValueLiteral(attr.Type, entitySetValue)
		if err != nil {
			return err
		}

		existing, err := eng.Store.GetValues(rootCtx, id)
		if err != nil {
			return err
		}
		filtered := existing[:0]
		for _, ev := range existing {
			if ev.AttributeID != attr.ID {
				filtered = append(filtered, ev)
			}
		}
		filtered = append(filtered, types.EntityValue{EntityID: id, AttributeID: attr.ID, Value: v})

		actor, err := engine.RequireUser(rootCtx)
		if err != nil {
			return err
		}
		return eng.Store.PutValues(rootCtx, id, filtered, actor)
	},
}

var entityDeleteID string

var entityDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(entityDeleteID)
		if err != nil {
			return err
		}
		actor, err := engine.RequireUser(rootCtx)
		if err != nil {
			return err
		}
		return eng.Store.DeleteEntity(rootCtx, id, actor)
	},
}

// parseValueLiteral converts a CLI string argument into the types.Value
// shape t's storage routing expects (spec.md §4.4).
func parseValueLiteral(t types.AttributeType, s string) (types.Value, error) {
	switch t {
	case types.TypeInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return types.Value{}, fmt.Errorf("parsing integer %q: %w", s, err)
		}
		return types.IntValue(n), nil
	case types.TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return types.Value{}, fmt.Errorf("parsing boolean %q: %w", s, err)
		}
		return types.BoolValue(b), nil
	case types.TypeNumber, types.TypeDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return types.Value{}, fmt.Errorf("parsing decimal %q: %w", s, err)
		}
		return types.DecimalValue(d), nil
	case types.TypeDate:
		ts, err := time.Parse("2006-01-02", s)
		if err != nil {
			return types.Value{}, fmt.Errorf("parsing date %q (want YYYY-MM-DD): %w", s, err)
		}
		return types.DateValue(ts), nil
	case types.TypeDateTime:
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return types.Value{}, fmt.Errorf("parsing datetime %q (want RFC3339): %w", s, err)
		}
		return types.DateTimeValue(ts), nil
	case types.TypeString, types.TypeText, types.TypeChoice:
		return types.StringValue(s), nil
	default:
		return types.Value{}, fmt.Errorf("attribute type %q cannot be set from the command line", t)
	}
}

func init() {
	entityCreateCmd.Flags().StringVar(&entityCreateSchema, "schema", "", "schema name")
	_ = entityCreateCmd.MarkFlagRequired("schema")

	entityGetCmd.Flags().StringVar(&entityGetID, "id", "", "entity id")
	_ = entityGetCmd.MarkFlagRequired("id")

	entitySetCmd.Flags().StringVar(&entitySetID, "id", "", "entity id")
	entitySetCmd.Flags().StringVar(&entitySetAttr, "attr", "", "attribute name")
	entitySetCmd.Flags().StringVar(&entitySetValue, "value", "", "value literal")
	_ = entitySetCmd.MarkFlagRequired("id")
	_ = entitySetCmd.MarkFlagRequired("attr")
	_ = entitySetCmd.MarkFlagRequired("value")

	entityDeleteCmd.Flags().StringVar(&entityDeleteID, "id", "", "entity id")
	_ = entityDeleteCmd.MarkFlagRequired("id")

	entityCmd.AddCommand(entityCreateCmd, entityGetCmd, entitySetCmd, entityDeleteCmd)
	rootCmd.AddCommand(entityCmd)
}

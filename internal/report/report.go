// Package report implements the report builder (spec.md §4.7): a relational
// projection of a schema name's Entities, merged across every published,
// non-retracted version of that name, with one column per reached leaf
// attribute. Column resolution fans out with golang.org/x/sync/errgroup,
// grounded on the teacher's internal/storage/dolt query helpers
// (one correlated subquery per column) rather than a single giant join.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dynaform/core/internal/deps"
	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/types"
)

// privateRedaction is the literal value substituted for any attribute
// marked IsPrivate when a report is built with IgnorePrivate (spec.md §4.7).
const privateRedaction = "[PRIVATE]"

// ColumnType is the projection type a report column is typed as, mapped
// from the owning attribute's datastore type (spec.md §4.7 typing table).
type ColumnType string

const (
	ColumnString      ColumnType = "string"       // choice
	ColumnUnicode     ColumnType = "unicode"       // string
	ColumnUnicodeText ColumnType = "unicode_text"  // text
	ColumnNumeric     ColumnType = "numeric"       // number/decimal
	ColumnInteger     ColumnType = "integer"       // integer
	ColumnBoolean     ColumnType = "boolean"       // boolean
	ColumnDate        ColumnType = "date"          // date
	ColumnDateTime    ColumnType = "datetime"      // datetime
)

func columnTypeFor(t types.AttributeType) ColumnType {
	switch t {
	case types.TypeChoice:
		return ColumnString
	case types.TypeString:
		return ColumnUnicode
	case types.TypeText:
		return ColumnUnicodeText
	case types.TypeNumber, types.TypeDecimal:
		return ColumnNumeric
	case types.TypeInteger:
		return ColumnInteger
	case types.TypeBoolean:
		return ColumnBoolean
	case types.TypeDate:
		return ColumnDate
	case types.TypeDateTime:
		return ColumnDateTime
	default:
		return ColumnUnicode
	}
}

// Column is one entry of a report's column plan: a logical attribute name
// merged across every published schema version it appears in (spec.md
// §4.7: "the column accumulates the set of Schema versions it appears in
// and merges choice dictionaries, with later versions overwriting earlier
// choice labels").
type Column struct {
	Name       string
	Type       ColumnType
	AttrType   types.AttributeType
	Private    bool
	Collection bool
	Choice     bool

	// Choices maps choice code -> label, most-recently-published version
	// wins on a relabel.
	Choices map[string]string
	// ChoiceOrder preserves first-seen declaration order, used to name
	// expand_collections sub-columns and as a stable iteration order.
	ChoiceOrder []string

	// versionAttrs maps schema id -> the attribute contributing this column
	// in that version; attribute ids (and even type/is_private) are
	// per-version, so resolution must go version by version.
	versionAttrs map[types.ID]*types.Attribute
}

func newColumn(name string) *Column {
	return &Column{Name: name, Choices: map[string]string{}, versionAttrs: map[types.ID]*types.Attribute{}}
}

// merge folds in one version's contributing attribute. BuildColumns calls
// merge in publish_date order, so whichever call is last for a given field
// is authoritative — this is what gives relabels and type/privacy changes
// "most recent version wins" semantics.
func (c *Column) merge(schemaID types.ID, a *types.Attribute) {
	c.versionAttrs[schemaID] = a
	c.AttrType = a.Type
	c.Type = columnTypeFor(a.Type)
	c.Private = a.IsPrivate
	c.Collection = a.EffectiveIsCollection()
	c.Choice = a.Type == types.TypeChoice
	for _, ch := range a.Choices {
		if _, seen := c.Choices[ch.Value]; !seen {
			c.ChoiceOrder = append(c.ChoiceOrder, ch.Value)
		}
		c.Choices[ch.Value] = ch.Title
	}
}

// projectedNames returns the header name(s) this column renders as under
// opts: one name normally, or one name per known choice code when
// ExpandCollections is set on a collection-of-choices column.
func (c *Column) projectedNames(opts Options) []string {
	if c.Collection && c.Choice && opts.ExpandCollections {
		names := make([]string, len(c.ChoiceOrder))
		for i, code := range c.ChoiceOrder {
			names[i] = c.Name + "_" + code
		}
		return names
	}
	return []string{c.Name}
}

// ColumnPlan is the resolved output of BuildColumns: the published,
// non-retracted versions a report name draws from, and the merged column
// set reached by walking each version's attribute tree.
type ColumnPlan struct {
	Name     string
	Versions []*types.Schema
	Columns  []*Column

	byName map[string]*Column
}

func (p *ColumnPlan) filter(names []string) *ColumnPlan {
	if len(names) == 0 {
		return p
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := &ColumnPlan{Name: p.Name, Versions: p.Versions, byName: map[string]*Column{}}
	for _, c := range p.Columns {
		if want[c.Name] {
			out.Columns = append(out.Columns, c)
			out.byName[c.Name] = c
		}
	}
	return out
}

// Options configures BuildReport (spec.md §4.7).
type Options struct {
	// IDs restricts the report to these entities. Empty means every entity
	// of every version in the column plan.
	IDs []types.ID

	// Attributes restricts the column plan to these attribute names.
	Attributes []string

	// ExpandCollections, for a collection-of-choices column, emits one
	// column per known choice code instead of one joined column.
	ExpandCollections bool

	// UseChoiceLabels renders choice labels instead of raw codes.
	UseChoiceLabels bool

	// IgnorePrivate substitutes "[PRIVATE]" for any attribute marked
	// IsPrivate, instead of its live value.
	IgnorePrivate bool

	// Context, when set, adds a context_key column sourced from the
	// Context row where external == Context (spec.md §4.5, §4.7).
	Context string
}

// Row is one projected report row, keyed by the final column header.
type Row map[string]any

// Report is the realized Selectable (spec.md §4.7): a fixed column order
// and one Row per Entity.
type Report struct {
	Columns []string
	Rows    []Row
}

// entityMetadataColumns are the fixed metadata columns joined onto every
// report ahead of the attribute-derived columns (spec.md §4.7).
var entityMetadataColumns = []string{
	"id", "form_name", "form_publish_date", "state", "collect_date",
	"not_done", "create_date", "create_user", "modify_date", "modify_user",
}

// Builder resolves and realizes reports for one storage backend.
type Builder struct {
	store storage.Storage
}

// NewBuilder wraps store for report construction.
func NewBuilder(store storage.Storage) *Builder {
	return &Builder{store: store}
}

// BuildColumns resolves the column plan for name (spec.md §4.7): every
// published, non-retracted version of name, optionally constrained to the
// versions actually used by ids, walked (descending into section
// attributes, not object attributes) and merged into one column per leaf
// attribute name.
func (b *Builder) BuildColumns(ctx context.Context, name string, ids []types.ID) (*ColumnPlan, error) {
	versions, err := b.store.ListSchemaVersions(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list versions of %q: %w", name, err)
	}

	var published []*types.Schema
	for _, v := range versions {
		if v.State == types.SchemaPublished {
			published = append(published, v)
		}
	}

	if len(ids) > 0 {
		used, err := b.schemaIDsOf(ctx, ids)
		if err != nil {
			return nil, err
		}
		filtered := published[:0]
		for _, v := range published {
			if used[v.ID] {
				filtered = append(filtered, v)
			}
		}
		published = filtered
	}

	sort.Slice(published, func(i, j int) bool {
		return published[i].PublishDate.Before(*published[j].PublishDate)
	})

	plan := &ColumnPlan{Name: name, Versions: published, byName: map[string]*Column{}}
	for _, sc := range published {
		for _, a := range deps.WalkAttributes(sc.AttributesInOrder()) {
			col, ok := plan.byName[a.Name]
			if !ok {
				col = newColumn(a.Name)
				plan.byName[a.Name] = col
				plan.Columns = append(plan.Columns, col)
			}
			col.merge(sc.ID, a)
		}
	}
	return plan, nil
}

func (b *Builder) schemaIDsOf(ctx context.Context, ids []types.ID) (map[types.ID]bool, error) {
	out := make(map[types.ID]bool, len(ids))
	for _, id := range ids {
		e, err := b.store.GetEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve entity %d for column plan: %w", id, err)
		}
		out[e.SchemaID] = true
	}
	return out, nil
}

// BuildReport realizes the full Selectable for name (spec.md §4.7): the
// column plan's attribute columns joined to the required entity metadata
// columns, one row per entity.
func (b *Builder) BuildReport(ctx context.Context, name string, opts Options) (*Report, error) {
	plan, err := b.BuildColumns(ctx, name, opts.IDs)
	if err != nil {
		return nil, err
	}
	plan = plan.filter(opts.Attributes)

	entityIDs := opts.IDs
	if len(entityIDs) == 0 {
		entityIDs, err = b.allEntities(ctx, plan.Versions)
		if err != nil {
			return nil, err
		}
	}

	schemaByID := make(map[types.ID]*types.Schema, len(plan.Versions))
	for _, sc := range plan.Versions {
		schemaByID[sc.ID] = sc
	}

	rows := make(map[types.ID]Row, len(entityIDs))
	for _, id := range entityIDs {
		e, err := b.store.GetEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve entity %d: %w", id, err)
		}
		row := Row{
			"id":           e.ID,
			"state":        e.State,
			"collect_date": e.CollectDate,
			"not_done":     e.State == types.EntityNotDone,
			"create_date":  e.CreateDate,
			"create_user":  e.CreateUser,
			"modify_date":  e.ModifyDate,
			"modify_user":  e.ModifyUser,
		}
		if sc, ok := schemaByID[e.SchemaID]; ok {
			row["form_name"] = sc.Name
			row["form_publish_date"] = sc.PublishDate
		}
		if opts.Context != "" {
			row["context_key"] = nil
			contexts, err := b.store.GetContexts(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("resolve contexts for entity %d: %w", id, err)
			}
			for _, c := range contexts {
				if c.External == opts.Context {
					row["context_key"] = c.Key
					break
				}
			}
		}
		rows[id] = row
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for _, col := range plan.Columns {
		col := col
		g.Go(func() error {
			cells, err := b.resolveColumn(gctx, col, entityIDs, opts)
			if err != nil {
				return fmt.Errorf("resolve column %q: %w", col.Name, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for id, cell := range cells {
				row, ok := rows[id]
				if !ok {
					continue
				}
				for k, v := range cell {
					row[k] = v
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Report{}
	out.Columns = append(out.Columns, entityMetadataColumns...)
	if opts.Context != "" {
		out.Columns = append(out.Columns, "context_key")
	}
	for _, col := range plan.Columns {
		out.Columns = append(out.Columns, col.projectedNames(opts)...)
	}
	out.Rows = make([]Row, 0, len(entityIDs))
	for _, id := range entityIDs {
		out.Rows = append(out.Rows, rows[id])
	}
	return out, nil
}

// allEntities returns every entity bound to any of versions, sorted by id.
func (b *Builder) allEntities(ctx context.Context, versions []*types.Schema) ([]types.ID, error) {
	var out []types.ID
	for _, sc := range versions {
		ids, err := b.store.ListEntitiesBySchema(ctx, sc.ID)
		if err != nil {
			return nil, fmt.Errorf("list entities of schema %q (%d): %w", sc.Name, sc.ID, err)
		}
		out = append(out, ids...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// resolveColumn realizes one column's correlated subquery for entityIDs,
// applying the expansion, label, and redaction rules of spec.md §4.7. The
// returned map is keyed by entity id, with the inner map keyed by the
// final projected column name(s) so a single column can fan out into
// several (expand_collections).
func (b *Builder) resolveColumn(ctx context.Context, col *Column, entityIDs []types.ID, opts Options) (map[types.ID]map[string]any, error) {
	table, ok := types.StorageTableFor(col.AttrType)
	if !ok {
		return nil, fmt.Errorf("attribute type %q has no storage table", col.AttrType)
	}

	out := make(map[types.ID]map[string]any, len(entityIDs))
	for _, id := range entityIDs {
		out[id] = map[string]any{}
	}
	redact := opts.IgnorePrivate && col.Private

	if col.Collection {
		merged, err := b.mergedValueSets(ctx, table, col, entityIDs)
		if err != nil {
			return nil, err
		}
		if col.Choice {
			if opts.ExpandCollections {
				expandChoiceCollection(out, col, merged, opts, redact)
				return out, nil
			}
			joinChoiceCollection(out, col, merged, opts, redact)
			return out, nil
		}
		joinScalarCollection(out, col, merged, redact)
		return out, nil
	}

	values := make(map[types.ID]types.Value, len(entityIDs))
	for _, attr := range col.versionAttrs {
		vs, err := b.store.ReportColumnValues(ctx, table, attr.ID, entityIDs)
		if err != nil {
			return nil, err
		}
		for id, v := range vs {
			values[id] = v
		}
	}
	for _, id := range entityIDs {
		cell := out[id]
		v, has := values[id]
		if !has {
			cell[col.Name] = nil
			continue
		}
		var rendered any
		if col.Choice && opts.UseChoiceLabels {
			if label, ok := col.Choices[v.String()]; ok {
				rendered = label
			} else {
				rendered = v.String()
			}
		} else {
			rendered = nativeValue(v)
		}
		if redact {
			rendered = privateRedaction
		}
		cell[col.Name] = rendered
	}
	return out, nil
}

// mergedValueSets fetches every stored value of col for entityIDs across
// all the schema versions that contribute to it.
func (b *Builder) mergedValueSets(ctx context.Context, table types.StorageTable, col *Column, entityIDs []types.ID) (map[types.ID][]types.Value, error) {
	merged := make(map[types.ID][]types.Value)
	for _, attr := range col.versionAttrs {
		sets, err := b.store.ReportColumnValueSets(ctx, table, attr.ID, entityIDs)
		if err != nil {
			return nil, err
		}
		for id, vs := range sets {
			merged[id] = append(merged[id], vs...)
		}
	}
	return merged, nil
}

// expandChoiceCollection emits one sub-column per known choice code
// (spec.md §4.7 scenario 4): selected -> label or 1, known-but-unselected
// -> null or 0, attribute entirely unanswered -> null regardless.
func expandChoiceCollection(out map[types.ID]map[string]any, col *Column, merged map[types.ID][]types.Value, opts Options, redact bool) {
	for _, code := range col.ChoiceOrder {
		subName := col.Name + "_" + code
		for id, cell := range out {
			vs := merged[id]
			var rendered any
			switch {
			case len(vs) == 0:
				rendered = nil
			case containsCode(vs, code):
				if opts.UseChoiceLabels {
					rendered = col.Choices[code]
				} else {
					rendered = int64(1)
				}
			default:
				if opts.UseChoiceLabels {
					rendered = nil
				} else {
					rendered = int64(0)
				}
			}
			if redact && rendered != nil {
				rendered = privateRedaction
			}
			cell[subName] = rendered
		}
	}
}

// joinChoiceCollection emits one column whose value is the ';'-joined
// sorted set of selected codes or labels (spec.md §4.7).
func joinChoiceCollection(out map[types.ID]map[string]any, col *Column, merged map[types.ID][]types.Value, opts Options, redact bool) {
	for id, cell := range out {
		vs := merged[id]
		if len(vs) == 0 {
			cell[col.Name] = nil
			continue
		}
		tokens := make([]string, 0, len(vs))
		for _, v := range vs {
			code := v.String()
			if opts.UseChoiceLabels {
				if label, ok := col.Choices[code]; ok {
					tokens = append(tokens, label)
					continue
				}
			}
			tokens = append(tokens, code)
		}
		sort.Strings(tokens)
		if redact {
			cell[col.Name] = privateRedaction
		} else {
			cell[col.Name] = strings.Join(tokens, ";")
		}
	}
}

// joinScalarCollection emits one column whose value is the ';'-joined
// sorted set of stored values' string forms, for a non-choice collection
// attribute (no code/label distinction applies).
func joinScalarCollection(out map[types.ID]map[string]any, col *Column, merged map[types.ID][]types.Value, redact bool) {
	for id, cell := range out {
		vs := merged[id]
		if len(vs) == 0 {
			cell[col.Name] = nil
			continue
		}
		tokens := make([]string, 0, len(vs))
		for _, v := range vs {
			tokens = append(tokens, v.String())
		}
		sort.Strings(tokens)
		if redact {
			cell[col.Name] = privateRedaction
		} else {
			cell[col.Name] = strings.Join(tokens, ";")
		}
	}
}

func containsCode(vs []types.Value, code string) bool {
	for _, v := range vs {
		if v.String() == code {
			return true
		}
	}
	return false
}

// nativeValue unwraps a tagged-sum Value into the Go-native type its kind
// carries, for columns rendered without choice-label substitution.
func nativeValue(v types.Value) any {
	switch v.Kind {
	case types.KindInt:
		return v.Int
	case types.KindBool:
		return v.Bool
	case types.KindDecimal:
		return v.Decimal
	case types.KindDateTime:
		return v.DateTime
	case types.KindDate:
		return v.Date
	case types.KindString:
		return v.Str
	case types.KindRef:
		return v.Ref
	default:
		return nil
	}
}

// Package memory implements internal/storage.Storage over in-process maps,
// for fast unit tests that don't need a real database. Its method surface
// mirrors the teacher's storage.Storage/Transaction contract (see
// internal/storage/storage.go, itself grounded on BeadsLog's storage.go);
// this package is the one backend in the module with no SQL driver to
// exercise, since its entire purpose is to stand in for one.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dynaform/core/internal/audit"
	"github.com/dynaform/core/internal/idgen"
	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/storage/factory"
	"github.com/dynaform/core/internal/types"
	"github.com/dynaform/core/internal/validation"
)

func init() {
	factory.RegisterBackend(factory.BackendMemory, func(_ context.Context, cfg storage.Config) (storage.Storage, error) {
		return New(cfg), nil
	})
}

// Store is the in-memory backend. All methods lock mu for the duration of
// the call; RunInTransaction holds the lock across the whole callback so
// readers inside the callback observe writers inside the same callback,
// the same read-your-writes guarantee spec.md §5 asks of a real
// transaction.
type Store struct {
	cfg storage.Config

	mu         sync.Mutex
	schemas    map[types.ID]*types.Schema
	entities   map[types.ID]*types.Entity
	values     map[types.ID][]types.EntityValue // keyed by entity id
	contexts   []types.Context
	categories map[string]types.Category
	auditRows  map[string][]audit.AuditRow

	seq idgen.SurrogateSequence
}

// New constructs an empty Store. It satisfies factory.BackendFactory via
// the package init() registration above.
func New(cfg storage.Config) *Store {
	return &Store{
		cfg:        cfg,
		schemas:    make(map[types.ID]*types.Schema),
		entities:   make(map[types.ID]*types.Entity),
		values:     make(map[types.ID][]types.EntityValue),
		categories: make(map[string]types.Category),
		auditRows:  make(map[string][]audit.AuditRow),
	}
}

func (s *Store) Close() error { return nil }

// RunInTransaction runs fn against the receiver itself: every Store method
// already locks s.mu, so nesting calls from inside fn would deadlock. A
// transactional caller must use the tx argument, not the outer Store, for
// every operation inside the callback — exactly as with a real driver.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, (*txHandle)(s))
}

// txHandle is Store reinterpreted without its own locking, so calls made
// through it while RunInTransaction already holds s.mu don't deadlock.
type txHandle Store

func (t *txHandle) PutSchema(ctx context.Context, sc *types.Schema, actor string) error {
	return (*Store)(t).putSchemaLocked(sc, actor)
}
func (t *txHandle) GetSchema(ctx context.Context, id types.ID) (*types.Schema, error) {
	return (*Store)(t).getSchemaLocked(id)
}
func (t *txHandle) GetSchemaByName(ctx context.Context, name string, on *time.Time) (*types.Schema, error) {
	return (*Store)(t).getSchemaByNameLocked(name, on)
}
func (t *txHandle) ListSchemaVersions(ctx context.Context, name string) ([]*types.Schema, error) {
	return (*Store)(t).listSchemaVersionsLocked(name)
}
func (t *txHandle) DeleteSchema(ctx context.Context, id types.ID, actor string) error {
	return (*Store)(t).deleteSchemaLocked(id)
}
func (t *txHandle) PutEntity(ctx context.Context, e *types.Entity, actor string) error {
	return (*Store)(t).putEntityLocked(ctx, e, actor)
}
func (t *txHandle) GetEntity(ctx context.Context, id types.ID) (*types.Entity, error) {
	return (*Store)(t).getEntityLocked(id)
}
func (t *txHandle) DeleteEntity(ctx context.Context, id types.ID, actor string) error {
	return (*Store)(t).deleteEntityLocked(id)
}
func (t *txHandle) PutValues(ctx context.Context, entityID types.ID, values []types.EntityValue, actor string) error {
	return (*Store)(t).putValuesLocked(ctx, entityID, values, actor)
}
func (t *txHandle) GetValues(ctx context.Context, entityID types.ID) ([]types.EntityValue, error) {
	return (*Store)(t).getValuesLocked(entityID)
}
func (t *txHandle) PutContext(ctx context.Context, c *types.Context) error {
	return (*Store)(t).putContextLocked(c)
}
func (t *txHandle) GetContexts(ctx context.Context, entityID types.ID) ([]types.Context, error) {
	return (*Store)(t).getContextsLocked(entityID)
}
func (t *txHandle) GetEntitiesByContext(ctx context.Context, external, key string) ([]types.ID, error) {
	return (*Store)(t).getEntitiesByContextLocked(external, key)
}
func (t *txHandle) DeleteContextsByHost(ctx context.Context, external, key string) (int, error) {
	return (*Store)(t).deleteContextsByHostLocked(external, key)
}

// Exported methods take the lock and delegate to the *Locked implementation
// so RunInTransaction can reuse the same logic without double-locking.

func (s *Store) PutSchema(ctx context.Context, sc *types.Schema, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putSchemaLocked(sc, actor)
}

func (s *Store) putSchemaLocked(sc *types.Schema, actor string) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if sc.ID == 0 {
		sc.ID = types.ID(s.seq.Next())
	}
	sc.Touch(now, actor)
	for _, a := range sc.Attributes {
		s.putAttributeLocked(sc, a, nil)
	}
	s.schemas[sc.ID] = sc
	return nil
}

// putAttributeLocked assigns identity and a content checksum to a and,
// recursively, to every nested child (spec.md §3.1: section attributes nest
// further attributes). parent is nil for a schema's top-level attributes.
func (s *Store) putAttributeLocked(sc *types.Schema, a *types.Attribute, parent *types.Attribute) {
	if a.ID == 0 {
		a.ID = types.ID(s.seq.Next())
	}
	a.SchemaID = sc.ID
	if parent != nil {
		pid := parent.ID
		a.ParentAttributeID = &pid
	} else {
		a.ParentAttributeID = nil
	}
	a.Checksum = idgen.ChecksumAttribute(sc.Name, a)
	for _, c := range a.Choices {
		if c.ID == 0 {
			c.ID = types.ID(s.seq.Next())
		}
		c.AttributeID = a.ID
	}
	for _, child := range a.Attributes {
		s.putAttributeLocked(sc, child, a)
	}
}

func (s *Store) GetSchema(ctx context.Context, id types.ID) (*types.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSchemaLocked(id)
}

func (s *Store) getSchemaLocked(id types.ID) (*types.Schema, error) {
	sc, ok := s.schemas[id]
	if !ok {
		return nil, &types.NotFoundError{What: "schema", Key: fmt.Sprintf("%d", id)}
	}
	return sc, nil
}

func (s *Store) GetSchemaByName(ctx context.Context, name string, on *time.Time) (*types.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSchemaByNameLocked(name, on)
}

// getSchemaByNameLocked resolves the "on: date" as-of semantics (SPEC_FULL
// §4): the schema version whose publish_date is the latest one not after
// on, falling back to the single draft version if on is nil.
func (s *Store) getSchemaByNameLocked(name string, on *time.Time) (*types.Schema, error) {
	versions, err := s.listSchemaVersionsLocked(name)
	if err != nil {
		return nil, err
	}
	if on == nil {
		for _, v := range versions {
			if v.State == types.SchemaDraft {
				return v, nil
			}
		}
		if len(versions) > 0 {
			return versions[len(versions)-1], nil
		}
		return nil, &types.NotFoundError{What: "schema", Key: name}
	}
	var best *types.Schema
	for _, v := range versions {
		if v.PublishDate == nil || v.PublishDate.After(*on) {
			continue
		}
		if best == nil || v.PublishDate.After(*best.PublishDate) {
			best = v
		}
	}
	if best == nil {
		return nil, &types.NotFoundError{What: "schema", Key: name}
	}
	return best, nil
}

func (s *Store) ListSchemaVersions(ctx context.Context, name string) ([]*types.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listSchemaVersionsLocked(name)
}

func (s *Store) listSchemaVersionsLocked(name string) ([]*types.Schema, error) {
	out := make([]*types.Schema, 0)
	for _, sc := range s.schemas {
		if sc.Name == name {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].PublishDate, out[j].PublishDate
		if pi == nil {
			return false
		}
		if pj == nil {
			return true
		}
		return pi.Before(*pj)
	})
	return out, nil
}

func (s *Store) DeleteSchema(ctx context.Context, id types.ID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSchemaLocked(id)
}

// deleteSchemaLocked cascades to entities and values bound to this schema
// (spec.md §3: "Cascading delete on schema removes attributes, choices,
// entities bound to it, and their values").
func (s *Store) deleteSchemaLocked(id types.ID) error {
	if _, ok := s.schemas[id]; !ok {
		return &types.NotFoundError{What: "schema", Key: fmt.Sprintf("%d", id)}
	}
	delete(s.schemas, id)
	for eid, e := range s.entities {
		if e.SchemaID == id {
			delete(s.entities, eid)
			delete(s.values, eid)
		}
	}
	return nil
}

func (s *Store) PutEntity(ctx context.Context, e *types.Entity, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putEntityLocked(ctx, e, actor)
}

func (s *Store) putEntityLocked(ctx context.Context, e *types.Entity, actor string) error {
	if actor == "" {
		return fmt.Errorf("%w: cannot flush entity %d", types.ErrNonExistentUser, e.ID)
	}
	sc, ok := s.schemas[e.SchemaID]
	if !ok {
		return &types.NotFoundError{What: "schema", Key: fmt.Sprintf("%d", e.SchemaID)}
	}
	if sc.State != types.SchemaPublished {
		return &types.InvalidEntitySchemaError{SchemaName: sc.Name, State: sc.State}
	}

	now := time.Now().UTC()
	before := audit.Row(nil)
	if e.ID == 0 {
		e.ID = types.ID(s.seq.Next())
		e.Revision = 1
	} else if existing, ok := s.entities[e.ID]; ok {
		before = entitySnapshot(existing)
	}
	e.Touch(now, actor)
	e.TouchedAt = now

	after := entitySnapshot(e)
	rev, err := audit.Flush(ctx, s, "entity", e.ID, before, after, e.Revision, actor)
	if err != nil {
		return err
	}
	e.Revision = rev
	s.entities[e.ID] = e
	return nil
}

func entitySnapshot(e *types.Entity) audit.Row {
	return audit.Row{
		"schema_id":    e.SchemaID,
		"state":        e.State,
		"collect_date": e.CollectDate,
	}
}

func (s *Store) GetEntity(ctx context.Context, id types.ID) (*types.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getEntityLocked(id)
}

func (s *Store) getEntityLocked(id types.ID) (*types.Entity, error) {
	e, ok := s.entities[id]
	if !ok {
		return nil, &types.NotFoundError{What: "entity", Key: fmt.Sprintf("%d", id)}
	}
	return e, nil
}

func (s *Store) DeleteEntity(ctx context.Context, id types.ID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteEntityLocked(id)
}

func (s *Store) deleteEntityLocked(id types.ID) error {
	if _, ok := s.entities[id]; !ok {
		return &types.NotFoundError{What: "entity", Key: fmt.Sprintf("%d", id)}
	}
	delete(s.entities, id)
	delete(s.values, id)
	return nil
}

func (s *Store) PutValues(ctx context.Context, entityID types.ID, values []types.EntityValue, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putValuesLocked(ctx, entityID, values, actor)
}

// putValuesLocked replaces every stored value of entityID. Each value is
// checked against its attribute's bounds, validator regex, and choices
// before anything is stored (spec.md §4.4 "Validation on write", §8
// invariant 7), with a matched choice's id stamped onto ChoiceID. Before the
// replace, any position whose value is changing or disappearing is shadowed
// via RecordAudit (spec.md §4.2 invariant 6), keyed by the owning
// attribute's name so the audit trail reads the same way the invariant's
// worked example names it ("a_audit"); the entity's revision is bumped once
// per flush if anything actually changed.
func (s *Store) putValuesLocked(ctx context.Context, entityID types.ID, values []types.EntityValue, actor string) error {
	if actor == "" {
		return fmt.Errorf("%w: cannot flush values for entity %d", types.ErrNonExistentUser, entityID)
	}
	e, ok := s.entities[entityID]
	if !ok {
		return &types.NotFoundError{What: "entity", Key: fmt.Sprintf("%d", entityID)}
	}
	sc, ok := s.schemas[e.SchemaID]
	if !ok {
		return &types.NotFoundError{What: "schema", Key: fmt.Sprintf("%d", e.SchemaID)}
	}

	// Validate and stamp ChoiceID on values in place, by index, so the
	// result stored below (s.values[entityID] = values) carries the
	// book-keeping rather than a throwaway grouped copy of it.
	attrIndexes := make(map[types.ID][]int)
	for i, v := range values {
		attrIndexes[v.AttributeID] = append(attrIndexes[v.AttributeID], i)
	}
	for attrID, idxs := range attrIndexes {
		attr, ok := sc.AttributeByID(attrID)
		if !ok {
			return validation.NoAttributeError(sc.Name, attrID)
		}
		for _, i := range idxs {
			choiceID, err := validation.CheckValue(sc.Name, attr, values[i].Value)
			if err != nil {
				return err
			}
			values[i].ChoiceID = choiceID
		}
	}

	newByAttr := make(map[types.ID][]types.EntityValue)
	for _, v := range values {
		newByAttr[v.AttributeID] = append(newByAttr[v.AttributeID], v)
	}
	oldByAttr := make(map[types.ID][]types.EntityValue)
	for _, v := range s.values[entityID] {
		oldByAttr[v.AttributeID] = append(oldByAttr[v.AttributeID], v)
	}

	anyChanged := false
	for attrID, ov := range oldByAttr {
		for _, shadowed := range cellsToShadow(ov, newByAttr[attrID]) {
			table := fmt.Sprintf("attribute_%d_audit", attrID)
			if attr, ok := sc.AttributeByID(attrID); ok {
				table = attr.Name + "_audit"
			}
			if err := s.RecordAudit(ctx, table, entityID, audit.AuditRow{
				PreImage: audit.Row{"position": shadowed.Position, "value": shadowed.Value},
				Revision: e.Revision,
				Actor:    actor,
			}); err != nil {
				return err
			}
			anyChanged = true
		}
	}

	s.values[entityID] = values
	if anyChanged {
		now := time.Now().UTC()
		e.Revision++
		e.ModifyDate = now
		e.ModifyUser = actor
		e.TouchedAt = now
	}
	return nil
}

// cellsToShadow reports which positions of old need their pre-image
// preserved before updated replaces them: a position removed entirely, or
// one whose value differs (audit.Diff's column-history model at cell
// granularity). A position present unchanged, or newly added, has no prior
// value worth shadowing.
func cellsToShadow(old, updated []types.EntityValue) []types.EntityValue {
	byPos := make(map[int]types.EntityValue, len(updated))
	for _, v := range updated {
		byPos[v.Position] = v
	}
	var out []types.EntityValue
	for _, ov := range old {
		nv, ok := byPos[ov.Position]
		if !ok || !nv.Value.Equal(ov.Value) {
			out = append(out, ov)
		}
	}
	return out
}

func (s *Store) GetValues(ctx context.Context, entityID types.ID) ([]types.EntityValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getValuesLocked(entityID)
}

func (s *Store) getValuesLocked(entityID types.ID) ([]types.EntityValue, error) {
	return s.values[entityID], nil
}

func (s *Store) PutContext(ctx context.Context, c *types.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putContextLocked(c)
}

func (s *Store) putContextLocked(c *types.Context) error {
	for _, existing := range s.contexts {
		if existing == *c {
			return nil
		}
	}
	s.contexts = append(s.contexts, *c)
	return nil
}

func (s *Store) GetContexts(ctx context.Context, entityID types.ID) ([]types.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getContextsLocked(entityID)
}

func (s *Store) getContextsLocked(entityID types.ID) ([]types.Context, error) {
	var out []types.Context
	for _, c := range s.contexts {
		if c.EntityID == entityID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) GetEntitiesByContext(ctx context.Context, external, key string) ([]types.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getEntitiesByContextLocked(external, key)
}

func (s *Store) getEntitiesByContextLocked(external, key string) ([]types.ID, error) {
	var out []types.ID
	for _, c := range s.contexts {
		if c.External == external && c.Key == key {
			out = append(out, c.EntityID)
		}
	}
	return out, nil
}

// DeleteContextsByHost removes every Context row for (external, key),
// backing HasEntities.DeleteHost (spec.md §4.5).
func (s *Store) DeleteContextsByHost(ctx context.Context, external, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteContextsByHostLocked(external, key)
}

func (s *Store) deleteContextsByHostLocked(external, key string) (int, error) {
	kept := s.contexts[:0]
	removed := 0
	for _, c := range s.contexts {
		if c.External == external && c.Key == key {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.contexts = kept
	return removed, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]types.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutCategory(ctx context.Context, c types.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.Name] = c
	return nil
}

func (s *Store) ListSchemaNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, sc := range s.schemas {
		if !seen[sc.Name] {
			seen[sc.Name] = true
			out = append(out, sc.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListEntitiesBySchema returns every entity id bound to schemaID, sorted for
// determinism (the in-memory store has no natural row order).
func (s *Store) ListEntitiesBySchema(ctx context.Context, schemaID types.ID) ([]types.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ID
	for id, e := range s.entities {
		if e.SchemaID == schemaID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ReportColumnValues implements the per-column subquery internal/report
// would otherwise compile to SQL for: scan every entity's stored values for
// attributeID and return the ones belonging to entityIDs. table is accepted
// for interface parity with the SQL backends, which shard by table; the
// in-memory store keeps all values together regardless of type.
func (s *Store) ReportColumnValues(ctx context.Context, table types.StorageTable, attributeID types.ID, entityIDs []types.ID) (map[types.ID]types.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[types.ID]bool, len(entityIDs))
	for _, id := range entityIDs {
		want[id] = true
	}
	out := make(map[types.ID]types.Value)
	for eid, vs := range s.values {
		if !want[eid] {
			continue
		}
		best := -1
		for _, v := range vs {
			if v.AttributeID == attributeID && v.Position > best {
				out[eid] = v.Value
				best = v.Position
			}
		}
	}
	return out, nil
}

// ReportColumnValueSets is ReportColumnValues without the highest-position-wins
// collapse, for the report builder's expand_collections path.
func (s *Store) ReportColumnValueSets(ctx context.Context, table types.StorageTable, attributeID types.ID, entityIDs []types.ID) (map[types.ID][]types.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[types.ID]bool, len(entityIDs))
	for _, id := range entityIDs {
		want[id] = true
	}
	out := make(map[types.ID][]types.Value)
	for eid, vs := range s.values {
		if !want[eid] {
			continue
		}
		sorted := append([]types.EntityValue(nil), vs...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
		for _, v := range sorted {
			if v.AttributeID == attributeID {
				out[eid] = append(out[eid], v.Value)
			}
		}
	}
	return out, nil
}

// RecordAudit implements audit.Recorder by appending to an in-process
// per-table slice (the teacher's SQL backends INSERT into a `<table>_audit`
// shadow table instead).
func (s *Store) RecordAudit(ctx context.Context, table string, entityID types.ID, row audit.AuditRow) error {
	s.auditRows[table] = append(s.auditRows[table], row)
	return nil
}

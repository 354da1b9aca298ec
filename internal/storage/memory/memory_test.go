package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(storage.Config{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func publishedSchema(name string) *types.Schema {
	return &types.Schema{
		Metadata: types.Metadata{Name: name, Title: name},
		State:    types.SchemaDraft,
		Storage:  types.StorageEAV,
		Attributes: map[string]*types.Attribute{
			"age": {
				Metadata: types.Metadata{Name: "age"},
				Type:     types.TypeInteger,
				Order:    0,
			},
			"a": {
				Metadata: types.Metadata{Name: "a"},
				Type:     types.TypeString,
				Order:    1,
			},
		},
	}
}

func TestPutAndGetSchema(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))
	require.NotZero(t, sc.ID)
	assert.NotEmpty(t, sc.Attributes["age"].Checksum)

	got, err := s.GetSchema(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "person", got.Name)
}

func TestGetSchemaNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSchema(context.Background(), types.ID(999))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPutEntityRequiresPublishedSchema(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID}
	err := s.PutEntity(ctx, e, "alice")
	assert.ErrorIs(t, err, types.ErrInvalidEntitySchema)
}

func TestPutEntityRequiresCurrentUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID}
	err := s.PutEntity(ctx, e, "")
	assert.ErrorIs(t, err, types.ErrNonExistentUser)
}

func TestPutEntityBumpsRevisionOnChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))
	require.EqualValues(t, 1, e.Revision)

	e.State = types.EntityComplete
	require.NoError(t, s.PutEntity(ctx, e, "alice"))
	assert.EqualValues(t, 2, e.Revision)
}

func TestValueUpdateShadowsOldValueAndBumpsRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))
	require.EqualValues(t, 1, e.Revision)

	aAttr := sc.Attributes["a"]
	require.NoError(t, s.PutValues(ctx, e.ID, []types.EntityValue{
		{EntityID: e.ID, AttributeID: aAttr.ID, Value: types.StringValue("x")},
	}, "alice"))
	require.NoError(t, s.PutValues(ctx, e.ID, []types.EntityValue{
		{EntityID: e.ID, AttributeID: aAttr.ID, Value: types.StringValue("y")},
	}, "alice"))

	live, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, live.Revision)

	require.Len(t, s.auditRows["a_audit"], 1)
	shadow := s.auditRows["a_audit"][0]
	assert.EqualValues(t, 1, shadow.Revision)
	assert.Equal(t, types.StringValue("x"), shadow.PreImage["value"])

	got, err := s.GetValues(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "y", got[0].Value.Str)
}

func TestPutValuesRequiresCurrentUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))

	aAttr := sc.Attributes["a"]
	err := s.PutValues(ctx, e.ID, []types.EntityValue{
		{EntityID: e.ID, AttributeID: aAttr.ID, Value: types.StringValue("x")},
	}, "")
	assert.ErrorIs(t, err, types.ErrNonExistentUser)
}

func TestPutValuesEnforcesBoundsAndStampsChoiceID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := &types.Schema{
		Metadata: types.Metadata{Name: "person", Title: "person"},
		State:    types.SchemaDraft,
		Storage:  types.StorageEAV,
		Attributes: map[string]*types.Attribute{
			"age": {
				Metadata: types.Metadata{Name: "age"},
				Type:     types.TypeInteger,
				ValueMin: ptr(0.0),
				ValueMax: ptr(150.0),
				Order:    0,
			},
			"status": {
				Metadata: types.Metadata{Name: "status"},
				Type:     types.TypeString,
				Order:    1,
				Choices: []*types.Choice{
					{Metadata: types.Metadata{Name: "active"}, Value: "active", Order: 0},
					{Metadata: types.Metadata{Name: "inactive"}, Value: "inactive", Order: 1},
				},
			},
		},
	}
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))

	ageAttr := sc.Attributes["age"]
	err := s.PutValues(ctx, e.ID, []types.EntityValue{
		{EntityID: e.ID, AttributeID: ageAttr.ID, Value: types.IntValue(200)},
	}, "alice")
	assert.ErrorIs(t, err, types.ErrConstraint)

	statusAttr := sc.Attributes["status"]
	err = s.PutValues(ctx, e.ID, []types.EntityValue{
		{EntityID: e.ID, AttributeID: statusAttr.ID, Value: types.StringValue("bogus")},
	}, "alice")
	assert.ErrorIs(t, err, types.ErrConstraint)

	require.NoError(t, s.PutValues(ctx, e.ID, []types.EntityValue{
		{EntityID: e.ID, AttributeID: statusAttr.ID, Value: types.StringValue("active")},
	}, "alice"))

	got, err := s.GetValues(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].ChoiceID)
	assert.Equal(t, statusAttr.Choices[0].ID, *got[0].ChoiceID)
}

func TestPutValuesPermitsNullValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	sc.Attributes["age"].ValueMin = ptr(0.0)
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))

	ageAttr := sc.Attributes["age"]
	require.NoError(t, s.PutValues(ctx, e.ID, []types.EntityValue{
		{EntityID: e.ID, AttributeID: ageAttr.ID, Value: types.NullValue()},
	}, "alice"))
}

func TestPutValuesRejectsUnknownAttribute(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))

	err := s.PutValues(ctx, e.ID, []types.EntityValue{
		{EntityID: e.ID, AttributeID: types.ID(99999), Value: types.StringValue("x")},
	}, "alice")
	assert.ErrorIs(t, err, types.ErrConstraint)
}

func ptr(f float64) *float64 { return &f }

func TestDeleteSchemaCascadesEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))
	e := &types.Entity{SchemaID: sc.ID}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))

	require.NoError(t, s.DeleteSchema(ctx, sc.ID, "alice"))
	_, err := s.GetEntity(ctx, e.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRunInTransactionCommitsOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	err := s.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		return tx.PutSchema(ctx, sc, "alice")
	})
	require.NoError(t, err)
	_, err = s.GetSchema(ctx, sc.ID)
	assert.NoError(t, err)
}

func TestContextAssociationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := publishedSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))
	e := &types.Entity{SchemaID: sc.ID}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))

	require.NoError(t, s.PutContext(ctx, &types.Context{EntityID: e.ID, External: "visits", Key: "42"}))
	ids, err := s.GetEntitiesByContext(ctx, "visits", "42")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, e.ID, ids[0])
}

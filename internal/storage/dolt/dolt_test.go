//go:build cgo

package dolt

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/types"
)

// skipIfNoDolt skips the test if the dolt binary is not installed, mirroring
// the teacher's internal/storage/dolt/dolt_test.go skipIfNoDolt: the
// embedded driver shells out to an on-disk dolt repository, so these tests
// need the real tool even though the connection itself is in-process.
func skipIfNoDolt(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("dolt"); err != nil {
		t.Skip("dolt not installed, skipping test")
	}
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	skipIfNoDolt(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Open(ctx, Config{Path: t.TempDir(), Database: "dynaform_test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSchema(name string) *types.Schema {
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
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))
	require.NotZero(t, sc.ID)

	got, err := s.GetSchema(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "person", got.Name)
	assert.Len(t, got.Attributes, 2)
	assert.NotEmpty(t, got.Attributes["age"].Checksum)
}

func TestPutEntityRequiresPublishedSchema(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	err := s.PutEntity(ctx, e, "alice")
	assert.ErrorIs(t, err, types.ErrInvalidEntitySchema)
}

func TestEntityValueRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))

	ageAttr := sc.Attributes["age"]
	values := []types.EntityValue{{EntityID: e.ID, AttributeID: ageAttr.ID, Value: types.IntValue(42)}}
	require.NoError(t, s.PutValues(ctx, e.ID, values, "alice"))

	got, err := s.GetValues(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].Value.Int)
}

func TestEntityUpdateBumpsRevisionAndAudits(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))
	require.EqualValues(t, 1, e.Revision)

	e.State = types.EntityComplete
	require.NoError(t, s.PutEntity(ctx, e, "alice"))
	assert.EqualValues(t, 2, e.Revision)

	var auditCount int
	row := s.exec.QueryRowContext(ctx, "SELECT COUNT(*) FROM entity_audit WHERE id = ?", int64(e.ID))
	require.NoError(t, row.Scan(&auditCount))
	assert.Equal(t, 1, auditCount)
}

func TestValueUpdateShadowsOldValueAndBumpsRevision(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
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

	var (
		count    int
		value    string
		revision int64
	)
	row := s.exec.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(value), MIN(revision) FROM string_audit WHERE entity_id = ? AND attribute_id = ?",
		int64(e.ID), int64(aAttr.ID))
	require.NoError(t, row.Scan(&count, &value, &revision))
	assert.Equal(t, 1, count)
	assert.Equal(t, "x", value)
	assert.EqualValues(t, 1, revision)

	got, err := s.GetValues(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "y", got[0].Value.Str)
}

func TestPutValuesRequiresCurrentUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
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
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
	ageMin := 0.0
	ageMax := 150.0
	sc.Attributes["age"].ValueMin = &ageMin
	sc.Attributes["age"].ValueMax = &ageMax
	sc.Attributes["status"] = &types.Attribute{
		Metadata: types.Metadata{Name: "status"},
		Type:     types.TypeString,
		Order:    2,
		Choices: []*types.Choice{
			{Metadata: types.Metadata{Name: "active"}, Value: "active", Order: 0},
			{Metadata: types.Metadata{Name: "inactive"}, Value: "inactive", Order: 1},
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
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
	ageMin := 0.0
	sc.Attributes["age"].ValueMin = &ageMin
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
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))

	err := s.PutValues(ctx, e.ID, []types.EntityValue{
		{EntityID: e.ID, AttributeID: types.ID(99999), Value: types.StringValue("x")},
	}, "alice")
	assert.ErrorIs(t, err, types.ErrConstraint)
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sc := testSchema("person")
	wantErr := errors.New("deliberate rollback")
	err := s.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		if err := tx.PutSchema(ctx, sc, "alice"); err != nil {
			return err
		}
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, err = s.GetSchema(ctx, sc.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlodia/loam/adapter"
	"github.com/vlodia/loam/query"
	"github.com/vlodia/loam/schema"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	reg.MustRegister(schema.Define("User").
		PrimaryKey("id", schema.TypeNumber, true).
		Column(schema.Column{Name: "name", Type: schema.TypeString}).
		Column(schema.Column{Name: "email", Type: schema.TypeString}).
		Column(schema.Column{Name: "age", Type: schema.TypeNumber, Nullable: true}).
		MustBuild())
	return reg
}

func newTestManager(t *testing.T, reg *schema.Registry) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewManager(reg, adapter.NewDB(db)), mock
}

func userRows(pairs ...[3]interface{}) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "email"})
	for _, p := range pairs {
		rows.AddRow(p[0], p[1], p[2])
	}
	return rows
}

func TestFind(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("SELECT * FROM users WHERE age > $1").
		WithArgs(18).
		WillReturnRows(userRows(
			[3]interface{}{int64(1), "John", "john@example.com"},
			[3]interface{}{int64(2), "Jane", "jane@example.com"},
		))

	records, err := mgr.Find(context.Background(), "User", FindOptions{
		Where: query.Gt("age", 18),
	})

	require.NoError(t, err)
	require.Len(t, records, 2)

	name, ok := records[0].String("name")
	require.True(t, ok)
	assert.Equal(t, "John", name)

	id, ok := records[1].Int("id")
	require.True(t, ok)
	assert.Equal(t, int64(2), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_UnregisteredType(t *testing.T) {
	mgr, _ := newTestManager(t, newTestRegistry(t))

	_, err := mgr.Find(context.Background(), "Ghost", FindOptions{})

	assert.ErrorIs(t, err, ErrTypeNotRegistered)
}

func TestFindOne_AbsenceIsNotAnError(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("SELECT * FROM users WHERE email = $1 LIMIT $2").
		WithArgs("nobody@example.com", 1).
		WillReturnRows(userRows())

	rec, err := mgr.FindOne(context.Background(), "User", FindOptions{
		Where: query.Eq("email", "nobody@example.com"),
	})

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindByID(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("SELECT * FROM users WHERE id = $1 LIMIT $2").
		WithArgs(1, 1).
		WillReturnRows(userRows([3]interface{}{int64(1), "John", "john@example.com"}))

	rec, err := mgr.FindByID(context.Background(), "User", 1)

	require.NoError(t, err)
	require.NotNil(t, rec)
	name, _ := rec.String("name")
	assert.Equal(t, "John", name)
}

func TestIdentityMap_SameRowSamePointer(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("SELECT * FROM users WHERE id = $1 LIMIT $2").
		WithArgs(1, 1).
		WillReturnRows(userRows([3]interface{}{int64(1), "John", "john@example.com"}))
	mock.ExpectQuery("SELECT * FROM users WHERE id = $1 LIMIT $2").
		WithArgs(1, 1).
		WillReturnRows(userRows([3]interface{}{int64(1), "John Updated", "john@example.com"}))

	first, err := mgr.FindByID(context.Background(), "User", 1)
	require.NoError(t, err)
	second, err := mgr.FindByID(context.Background(), "User", 1)
	require.NoError(t, err)

	assert.Same(t, first, second)

	// The later fetch merged its values into the shared record.
	name, _ := first.String("name")
	assert.Equal(t, "John Updated", name)
}

func TestIdentityMap_ClearEndsUnitOfWork(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("SELECT * FROM users WHERE id = $1 LIMIT $2").
		WithArgs(1, 1).
		WillReturnRows(userRows([3]interface{}{int64(1), "John", "john@example.com"}))
	mock.ExpectQuery("SELECT * FROM users WHERE id = $1 LIMIT $2").
		WithArgs(1, 1).
		WillReturnRows(userRows([3]interface{}{int64(1), "John", "john@example.com"}))

	first, err := mgr.FindByID(context.Background(), "User", 1)
	require.NoError(t, err)

	mgr.Clear()

	second, err := mgr.FindByID(context.Background(), "User", 1)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestSave_InsertWithGeneratedKey(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("INSERT INTO users (name, email) VALUES ($1, $2) RETURNING id").
		WithArgs("John", "john@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	rec := NewRecord("User")
	rec.Set("name", "John")
	rec.Set("email", "john@example.com")

	require.NoError(t, mgr.Save(context.Background(), rec))

	id, ok := rec.Int("id")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_InsertRegistersIdentity(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("INSERT INTO users (name, email) VALUES ($1, $2) RETURNING id").
		WithArgs("John", "john@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectQuery("SELECT * FROM users WHERE id = $1 LIMIT $2").
		WithArgs(42, 1).
		WillReturnRows(userRows([3]interface{}{int64(42), "John", "john@example.com"}))

	rec := NewRecord("User")
	rec.Set("name", "John")
	rec.Set("email", "john@example.com")
	require.NoError(t, mgr.Save(context.Background(), rec))

	fetched, err := mgr.FindByID(context.Background(), "User", 42)
	require.NoError(t, err)
	assert.Same(t, rec, fetched)
}

func TestSave_Update(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectExec("UPDATE users SET name = $1, email = $2 WHERE id = $3").
		WithArgs("Jane", "jane@example.com", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewRecord("User")
	rec.Set("id", int64(7))
	rec.Set("name", "Jane")
	rec.Set("email", "jane@example.com")

	require.NoError(t, mgr.Save(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_UpdateWithNoAssignmentsSkipsStatement(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	rec := NewRecord("User")
	rec.Set("id", int64(7))

	require.NoError(t, mgr.Save(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemove(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectExec("DELETE FROM users WHERE id = $1").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewRecord("User")
	rec.Set("id", int64(7))

	require.NoError(t, mgr.Remove(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemove_WithoutKeyIssuesNoStatement(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	rec := NewRecord("User")
	rec.Set("name", "John")

	err := mgr.Remove(context.Background(), rec)

	assert.ErrorIs(t, err, ErrMissingPrimaryKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemove_EvictsIdentity(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("SELECT * FROM users WHERE id = $1 LIMIT $2").
		WithArgs(1, 1).
		WillReturnRows(userRows([3]interface{}{int64(1), "John", "john@example.com"}))
	mock.ExpectExec("DELETE FROM users WHERE id = $1").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT * FROM users WHERE id = $1 LIMIT $2").
		WithArgs(1, 1).
		WillReturnRows(userRows([3]interface{}{int64(1), "John", "john@example.com"}))

	rec, err := mgr.FindByID(context.Background(), "User", 1)
	require.NoError(t, err)
	require.NoError(t, mgr.Remove(context.Background(), rec))

	refetched, err := mgr.FindByID(context.Background(), "User", 1)
	require.NoError(t, err)
	assert.NotSame(t, rec, refetched)
}

func TestCount(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("SELECT COUNT(*) FROM users WHERE age > $1").
		WithArgs(18).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := mgr.Count(context.Background(), "User", query.Gt("age", 18))

	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestExists(t *testing.T) {
	mgr, mock := newTestManager(t, newTestRegistry(t))

	mock.ExpectQuery("SELECT COUNT(*) FROM users WHERE email = $1").
		WithArgs("john@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT COUNT(*) FROM users WHERE email = $1").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	exists, err := mgr.Exists(context.Background(), "User", query.Eq("email", "john@example.com"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = mgr.Exists(context.Background(), "User", query.Eq("email", "nobody@example.com"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHooks_RunInDeclarationOrder(t *testing.T) {
	var order []string
	reg := schema.NewRegistry()
	reg.MustRegister(schema.Define("User").
		PrimaryKey("id", schema.TypeNumber, true).
		Column(schema.Column{Name: "name", Type: schema.TypeString}).
		Hook(schema.BeforeInsert, func(ctx context.Context, rec schema.Mutable) error {
			order = append(order, "before-1")
			return nil
		}).
		Hook(schema.BeforeInsert, func(ctx context.Context, rec schema.Mutable) error {
			order = append(order, "before-2")
			return nil
		}).
		Hook(schema.AfterInsert, func(ctx context.Context, rec schema.Mutable) error {
			order = append(order, "after")
			return nil
		}).
		MustBuild())

	mgr, mock := newTestManager(t, reg)
	mock.ExpectQuery("INSERT INTO users (name) VALUES ($1) RETURNING id").
		WithArgs("John").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	rec := NewRecord("User")
	rec.Set("name", "John")
	require.NoError(t, mgr.Save(context.Background(), rec))

	assert.Equal(t, []string{"before-1", "before-2", "after"}, order)
}

func TestHooks_BeforeInsertCanAssignProperties(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister(schema.Define("User").
		PrimaryKey("id", schema.TypeNumber, true).
		Column(schema.Column{Name: "name", Type: schema.TypeString}).
		Column(schema.Column{Name: "slug", Type: schema.TypeString}).
		Hook(schema.BeforeInsert, func(ctx context.Context, rec schema.Mutable) error {
			rec.Set("slug", "john")
			return nil
		}).
		MustBuild())

	mgr, mock := newTestManager(t, reg)
	mock.ExpectQuery("INSERT INTO users (name, slug) VALUES ($1, $2) RETURNING id").
		WithArgs("John", "john").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	rec := NewRecord("User")
	rec.Set("name", "John")
	require.NoError(t, mgr.Save(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHooks_BeforeFailureAborts(t *testing.T) {
	boom := errors.New("veto")
	reg := schema.NewRegistry()
	reg.MustRegister(schema.Define("User").
		PrimaryKey("id", schema.TypeNumber, true).
		Column(schema.Column{Name: "name", Type: schema.TypeString}).
		Hook(schema.BeforeInsert, func(ctx context.Context, rec schema.Mutable) error {
			return boom
		}).
		MustBuild())

	mgr, mock := newTestManager(t, reg)

	rec := NewRecord("User")
	rec.Set("name", "John")
	err := mgr.Save(context.Background(), rec)

	require.Error(t, err)
	assert.True(t, IsHookError(err))
	assert.ErrorIs(t, err, boom)

	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, schema.BeforeInsert, hookErr.Kind)

	// No statement was issued.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHooks_AfterFailureSurfacesAfterStatement(t *testing.T) {
	boom := errors.New("notify failed")
	reg := schema.NewRegistry()
	reg.MustRegister(schema.Define("User").
		PrimaryKey("id", schema.TypeNumber, true).
		Column(schema.Column{Name: "name", Type: schema.TypeString}).
		Hook(schema.AfterInsert, func(ctx context.Context, rec schema.Mutable) error {
			return boom
		}).
		MustBuild())

	mgr, mock := newTestManager(t, reg)
	mock.ExpectQuery("INSERT INTO users (name) VALUES ($1) RETURNING id").
		WithArgs("John").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	rec := NewRecord("User")
	rec.Set("name", "John")
	err := mgr.Save(context.Background(), rec)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, schema.AfterInsert, hookErr.Kind)

	// The statement already took effect: the INSERT ran and the generated
	// key was assigned before the hook fired.
	id, ok := rec.Int("id")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_InsertGeneratesClientSideUUIDKey(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister(schema.Define("Document").
		PrimaryKey("id", schema.TypeUUID, false).
		Column(schema.Column{Name: "title", Type: schema.TypeString}).
		MustBuild())

	mgr, mock := newTestManager(t, reg)
	mock.ExpectExec("INSERT INTO documents (id, title) VALUES ($1, $2)").
		WithArgs(sqlmock.AnyArg(), "notes").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewRecord("Document")
	rec.Set("title", "notes")
	require.NoError(t, mgr.Save(context.Background(), rec))

	id, ok := rec.UUID("id")
	require.True(t, ok)
	assert.NotEqual(t, [16]byte{}, [16]byte(id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBind_MovesUnitOfWorkIntoTransaction(t *testing.T) {
	reg := newTestRegistry(t)
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	wrapped := adapter.NewDB(db)
	mgr := NewManager(reg, wrapped)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET name = $1 WHERE id = $2").
		WithArgs("Jane", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := wrapped.Begin(context.Background())
	require.NoError(t, err)
	mgr.Bind(tx)

	rec := NewRecord("User")
	rec.Set("id", int64(7))
	rec.Set("name", "Jane")
	require.NoError(t, mgr.Save(context.Background(), rec))

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCount_NoNumericValue(t *testing.T) {
	result := &adapter.Result{Rows: []adapter.Row{{"count": "not-a-number"}}}

	_, err := countFromResult(result)
	assert.Error(t, err)

	_, err = countFromResult(&adapter.Result{})
	assert.Error(t, err)
}

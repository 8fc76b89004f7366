package repositorycache

import (
	"context"
	"database/sql"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

type Author struct {
	bun.BaseModel `bun:"table:authors"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name"`
}

type Post struct {
	bun.BaseModel `bun:"table:posts"`

	ID       string     `bun:"id,pk"`
	Title    string     `bun:"title"`
	AuthorID string     `bun:"author_id"`
	Author   *Author    `bun:"rel:belongs-to,join:author_id=id"`
	Comments []*Comment `bun:"rel:has-many,join:id=post_id"`
}

type Comment struct {
	bun.BaseModel `bun:"table:comments"`

	ID     string `bun:"id,pk"`
	PostID string `bun:"post_id"`
	Body   string `bun:"body"`
}

// Address is never stored.
type Address struct {
	City string
}

// newTestDB opens a private in-memory sqlite database with the test schema.
// A single connection keeps every query on the same in-memory database.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, m := range []any{(*Author)(nil), (*Post)(nil), (*Comment)(nil)} {
		if _, err := db.NewCreateTable().Model(m).Exec(ctx); err != nil {
			t.Fatalf("failed to create table: %v", err)
		}
	}
	return db
}

// bunRepository implements the parts of repository.Repository used by the
// catalog and the persister with plain bun queries. Other methods panic.
type bunRepository[T any] struct {
	repository.Repository[T]

	db        *bun.DB
	newRecord func() T
	gets      int
	creates   int
}

func newBunRepository[T any](db *bun.DB, newRecord func() T) *bunRepository[T] {
	return &bunRepository[T]{db: db, newRecord: newRecord}
}

func (r *bunRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	r.gets++
	record := r.newRecord()
	if err := r.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		var zero T
		return zero, err
	}
	return record, nil
}

func (r *bunRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *bunRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	r.creates++
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		var zero T
		return zero, err
	}
	return record, nil
}

// stubRepository answers GetByID with a fixed result.
type stubRepository[T any] struct {
	repository.Repository[T]

	record T
	err    error
}

func (r *stubRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return r.record, r.err
}

package di

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// Widget is the fixture model used by the container tests.
type Widget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID       string `bun:"id,pk"`
	Name     string `bun:"name"`
	Active   bool   `bun:"active"`
	Fresh    bool   `bun:"fresh"`
	OwnerID  string `bun:"owner_id"`
	Owner    *Owner `bun:"rel:belongs-to,join:owner_id=id"`
	Position int    `bun:"position"`
}

// Owner is a belongs-to relation of Widget.
type Owner struct {
	bun.BaseModel `bun:"table:owners"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name"`
}

// Dimensions is never stored.
type Dimensions struct {
	Width  int
	Height int
}

func newTestDB(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, m := range []any{(*Owner)(nil), (*Widget)(nil)} {
		if _, err := db.NewCreateTable().Model(m).Exec(ctx); err != nil {
			t.Fatalf("failed to create table: %v", err)
		}
	}
	return db
}

// bunRepository implements the repository methods the container relies on.
// Other methods are left to the embedded nil interface and panic.
type bunRepository[T any] struct {
	repository.Repository[T]

	db        *bun.DB
	newRecord func() T

	mu      sync.Mutex
	gets    int
	creates int
}

func newBunRepository[T any](db *bun.DB, newRecord func() T) *bunRepository[T] {
	return &bunRepository[T]{db: db, newRecord: newRecord}
}

func (r *bunRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	r.mu.Lock()
	r.gets++
	r.mu.Unlock()

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
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		var zero T
		return zero, err
	}
	return record, nil
}

func (r *bunRepository[T]) counts() (gets, creates int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets, r.creates
}

func buildWidget(ctx context.Context) (*Widget, error) {
	return &Widget{ID: uuid.NewString(), Name: "widget", Active: true}, nil
}

func buildOwner(ctx context.Context) (*Owner, error) {
	return &Owner{ID: uuid.NewString(), Name: "owner"}, nil
}

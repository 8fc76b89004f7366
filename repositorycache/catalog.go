package repositorycache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"

	"github.com/charmbracelet/log"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-fixture-cache/cache"
)

// Interface assertion to ensure Catalog satisfies cache.Catalog
var _ cache.Catalog = (*Catalog)(nil)

// model is the catalog's view of one registered entity type.
type model struct {
	entityType cache.EntityType
	typ        reflect.Type
	getByID    func(ctx context.Context, id string) (any, error)
}

// Catalog describes entity types backed by go-repository-bun repositories.
// Relation fields are read from the bun schema, replayed identifiers are
// resolved with Repository.GetByID.
type Catalog struct {
	db     *bun.DB
	logger *log.Logger
	models *xsync.MapOf[string, *model]
}

// CatalogOption customizes a Catalog.
type CatalogOption func(*Catalog)

// WithLogger sets the logger used for lookup failures.
func WithLogger(l *log.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = l }
}

// NewCatalog creates an empty catalog reading table metadata from db.
func NewCatalog(db *bun.DB, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		db:     db,
		logger: log.New(io.Discard),
		models: xsync.NewMapOf[string, *model](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a persisted entity type stored through repo.
// T must be a struct or a pointer to a struct.
func Register[T any](c *Catalog, name string, repo repository.Repository[T]) error {
	typ, err := structType[T]()
	if err != nil {
		return err
	}
	if repo == nil {
		return fmt.Errorf("repositorycache: nil repository for %q", name)
	}

	c.models.Store(name, &model{
		entityType: cache.EntityType{Name: name, Persisted: true},
		typ:        typ,
		getByID: func(ctx context.Context, id string) (any, error) {
			record, err := repo.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return record, nil
		},
	})
	return nil
}

// RegisterValue adds an entity type that is never persisted, such as a value
// object built by a factory. Fetches for it always create.
func RegisterValue[T any](c *Catalog, name string) error {
	typ, err := structType[T]()
	if err != nil {
		return err
	}
	c.models.Store(name, &model{
		entityType: cache.EntityType{Name: name, Persisted: false},
		typ:        typ,
	})
	return nil
}

// Names returns the registered entity type names, sorted.
func (c *Catalog) Names() []string {
	var names []string
	c.models.Range(func(name string, _ *model) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Describe implements cache.Describer.
func (c *Catalog) Describe(ctx context.Context, name string) (cache.EntityType, error) {
	m, ok := c.models.Load(name)
	if !ok {
		return cache.EntityType{}, fmt.Errorf("%w: %s", cache.ErrUnknownEntityType, name)
	}
	return m.entityType, nil
}

// ClassifyFields implements cache.FieldClassifier. Belongs-to relations are
// common: they are reported under their Go name, its snake form, and the
// names of their foreign key columns. Every other relation is uncommon.
func (c *Catalog) ClassifyFields(ctx context.Context, et cache.EntityType) (cache.FieldClasses, error) {
	m, ok := c.models.Load(et.Name)
	if !ok {
		return cache.FieldClasses{}, fmt.Errorf("%w: %s", cache.ErrUnknownEntityType, et.Name)
	}
	if !m.entityType.Persisted {
		return cache.FieldClasses{}, nil
	}

	table := c.db.Table(m.typ)
	common := newNameSet()
	uncommon := newNameSet()

	for name, rel := range table.Relations {
		target := uncommon
		if rel.Type == schema.BelongsToRelation {
			target = common
			for _, fk := range rel.BasePKs {
				target.add(fk.Name, fk.GoName)
			}
		}
		target.add(name, toSnake(name))
		if rel.Field != nil {
			target.add(rel.Field.GoName, rel.Field.Name)
		}
	}

	return cache.FieldClasses{Common: common.sorted(), Uncommon: uncommon.sorted()}, nil
}

// Resolve implements cache.Resolver. Lookup failures other than context
// cancellation are reported as not found.
func (c *Catalog) Resolve(ctx context.Context, et cache.EntityType, id string) (any, bool, error) {
	m, ok := c.models.Load(et.Name)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", cache.ErrUnknownEntityType, et.Name)
	}
	if m.getByID == nil {
		return nil, false, nil
	}

	entity, err := m.getByID(ctx, id)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		if errors.Is(err, sql.ErrNoRows) {
			c.logger.Debug("cached fixture not found", "entity_type", et.Name, "identifier", id)
		} else {
			c.logger.Warn("fixture lookup failed, treating as not found", "entity_type", et.Name, "identifier", id, "error", err)
		}
		return nil, false, nil
	}

	return entity, true, nil
}

// IdentifierOf implements cache.Resolver. The identifier is the value of the
// first primary key column known to bun, or of an ID field.
func (c *Catalog) IdentifierOf(entity any) (string, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", errors.New("repositorycache: nil entity")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("repositorycache: cannot extract identifier from %T", entity)
	}

	candidates := []string{"ID", "Id"}
	if table := c.db.Table(v.Type()); len(table.PKs) > 0 {
		candidates = append([]string{table.PKs[0].GoName}, candidates...)
	}

	for _, name := range candidates {
		field := v.FieldByName(name)
		if !field.IsValid() || !field.CanInterface() {
			continue
		}
		if field.IsZero() {
			return "", fmt.Errorf("repositorycache: %T has an empty %s", entity, name)
		}
		return fmt.Sprintf("%v", field.Interface()), nil
	}
	return "", fmt.Errorf("repositorycache: no ID field found in %T", entity)
}

func structType[T any]() (reflect.Type, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("repositorycache: %s is not a struct type", typ)
	}
	return typ, nil
}

type nameSet map[string]struct{}

func newNameSet() nameSet { return make(nameSet) }

func (s nameSet) add(names ...string) {
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
}

func (s nameSet) sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

package record

import (
	"database/sql"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprecord/pkg/core"
)

type Audit struct {
	CreatedAt time.Time  `db:"created_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

type Publisher struct {
	Audit
	ID       int64          `db:"id,pk,auto"`
	Name     string         // untagged: snake_case
	Website  sql.NullString `db:"website"`
	Verified bool
	Notes    string `db:"-"`
}

type noKey struct {
	Name string
}

type badField struct {
	ID   int64    `db:"id,pk"`
	Tags []string `db:"tags"`
}

type badAuto struct {
	Code string `db:"code,pk,auto"`
}

type badOption struct {
	ID int64 `db:"id,pk,unique"`
}

type compositeAuto struct {
	A int64 `db:"a,pk,auto"`
	B int64 `db:"b,pk"`
}

type fkUnmapped struct {
	ID int64 `db:"id,pk"`
}

func (fkUnmapped) ForeignKeys() []ForeignKey {
	return []ForeignKey{References[Author]("writer_id")}
}

type fkMismatch struct {
	ID         int64  `db:"id,pk"`
	AuthorName string `db:"author_name"`
}

func (fkMismatch) ForeignKeys() []ForeignKey {
	return []ForeignKey{References[Author]("author_name")}
}

type fkCount struct {
	ID int64 `db:"id,pk"`
	A  int64 `db:"a"`
	B  int64 `db:"b"`
}

func (fkCount) ForeignKeys() []ForeignKey {
	return []ForeignKey{References[Author]("a", "b")}
}

type fkBrokenTarget struct {
	ID    int64 `db:"id,pk"`
	BadID int64 `db:"bad_id"`
}

func (fkBrokenTarget) ForeignKeys() []ForeignKey {
	return []ForeignKey{References[badField]("bad_id")}
}

type authorSummary struct {
	ID   int64  `db:"id,pk"`
	Name string `db:"name"`
}

func (authorSummary) TableName() string { return "authors" }

// authorRow maps the authors table with the same columns as Author.
type authorRow struct {
	ID   int64      `db:"id,pk"`
	Name string     `db:"name"`
	Born *time.Time `db:"born"`
}

func (authorRow) TableName() string { return "authors" }

type Loan struct {
	ID         int64 `db:"id,pk"`
	LenderID   int64 `db:"lender_id"`
	BorrowerID int64 `db:"borrower_id"`
}

func (Loan) ForeignKeys() []ForeignKey {
	return []ForeignKey{
		References[Employee]("lender_id"),
		References[Employee]("borrower_id"),
	}
}

type Edition struct {
	ISBN  string `db:"isbn,pk"`
	Title string `db:"title"`
}

func (Edition) ForeignKeys() []ForeignKey {
	return []ForeignKey{ReferencesColumns[Book]([]string{"title"}, []string{"title"})}
}

func TestMappingOf(t *testing.T) {
	reg := NewRegistry()
	m, err := reg.Mapping(reflect.TypeOf(Publisher{}))
	require.NoError(t, err)

	assert.Equal(t, "publishers", m.Table())
	assert.Equal(t, []string{"created_at", "deleted_at", "id", "name", "website", "verified"}, m.ColumnNames())
	assert.Equal(t, []string{"id"}, m.PrimaryKey())

	auto, ok := m.AutoKey()
	require.True(t, ok)
	assert.Equal(t, "ID", auto.Field)

	created, ok := m.Column("created_at")
	require.True(t, ok)
	assert.Equal(t, ColumnTime, created.Type)
	assert.Equal(t, "Audit.CreatedAt", created.Field)
	assert.False(t, created.Nullable)

	deleted, _ := m.Column("deleted_at")
	assert.True(t, deleted.Nullable)

	website, _ := m.Column("website")
	assert.Equal(t, ColumnText, website.Type)
	assert.True(t, website.Nullable)

	verified, _ := m.Column("verified")
	assert.Equal(t, ColumnBool, verified.Type)

	_, ok = m.Column("notes")
	assert.False(t, ok)

	again, err := reg.Mapping(reflect.TypeOf(Publisher{}))
	require.NoError(t, err)
	assert.Same(t, m, again)
}

func TestMappingOf_ForeignKeys(t *testing.T) {
	reg := NewRegistry()
	m, err := reg.Mapping(reflect.TypeOf(BookTag{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"book_id", "tag_code"}, m.PrimaryKey())
	require.Len(t, m.ForeignKeys(), 2)
	assert.Equal(t, "(book_id) -> books(id)", m.ForeignKeys()[0].String())
	assert.Equal(t, "(tag_code) -> tags(code)", m.ForeignKeys()[1].String())
	assert.Len(t, m.ForeignKeysTo("tags"), 1)

	// targets are registered along the way
	for _, table := range []string{"authors", "books", "tags", "book_tags"} {
		_, ok := reg.Lookup(table)
		assert.True(t, ok, table)
	}

	self, err := reg.Mapping(reflect.TypeOf(Employee{}))
	require.NoError(t, err)
	require.Len(t, self.ForeignKeys(), 1)
	assert.Equal(t, "employees", self.ForeignKeys()[0].TargetTable)

	edition, err := reg.Mapping(reflect.TypeOf(Edition{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, edition.ForeignKeys()[0].TargetColumns)
}

func TestMappingOf_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		typ     reflect.Type
		wantMsg string
	}{
		{"not a struct", reflect.TypeOf(0), "must be struct types"},
		{"no primary key", reflect.TypeOf(noKey{}), "primary key is empty"},
		{"unsupported field", reflect.TypeOf(badField{}), "unsupported type"},
		{"auto on text key", reflect.TypeOf(badAuto{}), "auto requires an integer primary key"},
		{"unknown tag option", reflect.TypeOf(badOption{}), `unknown db tag option "unique"`},
		{"auto in composite key", reflect.TypeOf(compositeAuto{}), "composite key"},
		{"unmapped foreign key column", reflect.TypeOf(fkUnmapped{}), `"writer_id" is not mapped`},
		{"foreign key type mismatch", reflect.TypeOf(fkMismatch{}), "is text but authors.id is integer"},
		{"foreign key arity", reflect.TypeOf(fkCount{}), "has 2 columns but authors references 1"},
		{"broken target", reflect.TypeOf(fkBrokenTarget{}), "unsupported type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			_, err := reg.Mapping(tt.typ)
			require.Error(t, err)

			var cfgErr *core.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %T", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.True(t, errors.Is(err, core.ErrConfiguration))

			// a failed build registers nothing
			assert.Empty(t, reg.Mappings())
		})
	}
}

func TestMappingOf_TableConflict(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Mapping(reflect.TypeOf(Author{}))
	require.NoError(t, err)

	_, err = reg.Mapping(reflect.TypeOf(authorSummary{}))
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, `table "authors" is already mapped`)

	// identical layouts may share a table; the first type keeps it
	_, err = reg.Mapping(reflect.TypeOf(authorRow{}))
	require.NoError(t, err)
	m, ok := reg.Lookup("authors")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(Author{}), m.Type())
}

func TestAssociations(t *testing.T) {
	t.Run("has many", func(t *testing.T) {
		assert.Equal(t, "books", authorBooks.Name())
		assert.Equal(t, ToMany, authorBooks.Kind())
		assert.Equal(t, []string{"id"}, authorBooks.OwnerColumns())
		assert.Equal(t, []string{"author_id"}, authorBooks.RelatedColumns())
		assert.Equal(t, "books toMany: authors(id) -> books(author_id)", authorBooks.String())
	})

	t.Run("inverse of has many", func(t *testing.T) {
		assert.Equal(t, ToOne, bookAuthor.Kind())
		assert.Equal(t, []string{"author_id"}, bookAuthor.OwnerColumns())
		assert.Equal(t, []string{"id"}, bookAuthor.RelatedColumns())
	})

	t.Run("many to many", func(t *testing.T) {
		require.NotNil(t, bookTags.Through())
		assert.Equal(t, "book_tags", bookTags.Through().Table())
		assert.Equal(t, "tags toMany: books(id) -> tags(code) through book_tags", bookTags.String())
		assert.Equal(t, ToMany, tagBooks.Kind())
		assert.Equal(t, []string{"code"}, tagBooks.OwnerColumns())
	})

	t.Run("self reference", func(t *testing.T) {
		assert.Equal(t, []string{"id"}, reports.OwnerColumns())
		assert.Equal(t, []string{"manager_id"}, reports.RelatedColumns())
		assert.Equal(t, []string{"manager_id"}, manager.OwnerColumns())
	})

	t.Run("has one", func(t *testing.T) {
		a, err := HasOne[Author, Book]("first_book")
		require.NoError(t, err)
		assert.Equal(t, ToOne, a.Kind())
		assert.Equal(t, ToOne, a.Inverse("author").Kind())
		assert.Equal(t, ToMany, bookAuthor.Inverse("books").Kind())
	})
}

func TestAssociations_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		build   func() error
		wantMsg string
	}{
		{
			name: "empty name",
			build: func() error {
				_, err := HasMany[Author, Book]("")
				return err
			},
			wantMsg: "association name is empty",
		},
		{
			name: "no foreign key",
			build: func() error {
				_, err := BelongsTo[Author, Book]("book")
				return err
			},
			wantMsg: "authors declares no foreign key referencing books",
		},
		{
			name: "unknown via columns",
			build: func() error {
				_, err := HasMany[Author, Book]("books", Via("writer_id"))
				return err
			},
			wantMsg: "books declares no foreign key (writer_id) referencing authors",
		},
		{
			name: "ambiguous",
			build: func() error {
				_, err := BelongsTo[Loan, Employee]("party")
				return err
			},
			wantMsg: "loans has 2 foreign keys referencing employees; select one with Via",
		},
		{
			name: "pivot without key to related",
			build: func() error {
				_, err := ManyToMany[Book, Employee, BookTag]("readers")
				return err
			},
			wantMsg: "book_tags declares no foreign key referencing employees",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			var cfgErr *core.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	lender, err := BelongsTo[Loan, Employee]("lender", Via("lender_id"))
	require.NoError(t, err)
	assert.Equal(t, []string{"lender_id"}, lender.OwnerColumns())

	assert.Panics(t, func() { Must(BelongsTo[Author, Book]("book")) })
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"ID":         "id",
		"AuthorID":   "author_id",
		"HTTPServer": "http_server",
		"Name":       "name",
		"BookTag":    "book_tag",
		"Line2Text":  "line2_text",
	}
	for in, want := range tests {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

type Library struct {
	ID   int64  `db:"id,pk,auto"`
	Name string `db:"name"`
}

func (Library) TableName() string { return "libraries" }

type Branch struct {
	ID        int64  `db:"id,pk,auto"`
	LibraryID int64  `db:"library_id"`
	City      string `db:"city"`
}

func (Branch) TableName() string { return "branches" }

func (Branch) ForeignKeys() []ForeignKey {
	return []ForeignKey{References[Library]("library_id")}
}

func TestRegistry_ConcurrentFirstUse(t *testing.T) {
	reg := NewRegistry()
	libraryType := reflect.TypeOf(Library{})
	branchType := reflect.TypeOf(Branch{})

	const workers = 32
	libraries := make([]*KeyMapping, workers)
	branches := make([]*KeyMapping, workers)
	errs := make([]error, workers)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			// half the workers reach the parent through the child's foreign key
			first, second := branchType, libraryType
			if i%2 == 1 {
				first, second = second, first
			}
			a, err := reg.Mapping(first)
			if err != nil {
				errs[i] = err
				return
			}
			b, err := reg.Mapping(second)
			if err != nil {
				errs[i] = err
				return
			}
			_ = reg.Mappings()
			if first == branchType {
				branches[i], libraries[i] = a, b
			} else {
				libraries[i], branches[i] = a, b
			}
		}()
	}
	close(start)
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i], "worker %d", i)
		assert.Same(t, libraries[0], libraries[i], "worker %d", i)
		assert.Same(t, branches[0], branches[i], "worker %d", i)
	}
	assert.Equal(t, "libraries", libraries[0].Table())
	assert.Equal(t, "branches", branches[0].Table())
	assert.Equal(t, []string{"(library_id) -> libraries(id)"}, []string{branches[0].ForeignKeys()[0].String()})

	all := reg.Mappings()
	require.Len(t, all, 2)
	assert.Same(t, branches[0], all[0])
	assert.Same(t, libraries[0], all[1])
}

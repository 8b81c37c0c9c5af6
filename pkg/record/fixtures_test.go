package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprecord/internal/testutil"
	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/storage"
)

type Author struct {
	ID   int64      `db:"id,pk,auto"`
	Name string     `db:"name"`
	Born *time.Time `db:"born"`
}

func (Author) TableName() string { return "authors" }

type Book struct {
	ID       int64  `db:"id,pk,auto"`
	Title    string `db:"title"`
	AuthorID int64  `db:"author_id"`
	Year     int    `db:"year"`
}

func (Book) ForeignKeys() []ForeignKey {
	return []ForeignKey{References[Author]("author_id")}
}

type Tag struct {
	Code  string `db:"code,pk"`
	Label string `db:"label"`
}

type BookTag struct {
	BookID  int64  `db:"book_id,pk"`
	TagCode string `db:"tag_code,pk"`
}

func (BookTag) TableName() string { return "book_tags" }

func (BookTag) ForeignKeys() []ForeignKey {
	return []ForeignKey{
		References[Book]("book_id"),
		References[Tag]("tag_code"),
	}
}

type Employee struct {
	ID        int64  `db:"id,pk"`
	Name      string `db:"name"`
	ManagerID *int64 `db:"manager_id"`
}

func (Employee) ForeignKeys() []ForeignKey {
	return []ForeignKey{References[Employee]("manager_id")}
}

// Note generates its own key and validates itself.
type Note struct {
	ID   string `db:"id,pk"`
	Body string `db:"body"`
}

var noteSeq int

func (n *Note) GenerateKey() error {
	noteSeq++
	n.ID = fmt.Sprintf("note-%d", noteSeq)
	return nil
}

func (n *Note) Validate() error {
	if n.Body == "" {
		return errors.New("body is required")
	}
	return nil
}

type Reading struct {
	ID    int64 `db:"id,pk"`
	Pages int64 `db:"pages"`
}

var (
	authorBooks = Must(HasMany[Author, Book]("books"))
	bookAuthor  = authorBooks.Inverse("author")
	bookTags    = Must(ManyToMany[Book, Tag, BookTag]("tags"))
	tagBooks    = bookTags.Inverse("books")
	reports     = Must(HasMany[Employee, Employee]("reports", Via("manager_id")))
	manager     = Must(BelongsTo[Employee, Employee]("manager"))
)

var schema = []string{
	`CREATE TABLE authors (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE, born DATETIME)`,
	`CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, author_id INTEGER NOT NULL REFERENCES authors(id), year INTEGER NOT NULL DEFAULT 0)`,
	`CREATE TABLE tags (code TEXT PRIMARY KEY, label TEXT NOT NULL)`,
	`CREATE TABLE book_tags (book_id INTEGER NOT NULL REFERENCES books(id), tag_code TEXT NOT NULL REFERENCES tags(code), PRIMARY KEY (book_id, tag_code))`,
	`CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT NOT NULL, manager_id INTEGER REFERENCES employees(id))`,
	`CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT NOT NULL)`,
	`CREATE TABLE readings (id INTEGER PRIMARY KEY, pages)`,
}

func newDB(t *testing.T) *storage.DB {
	t.Helper()
	return testutil.NewTestDB(t, schema...)
}

// countingExecutor counts the read statements issued through it.
type countingExecutor struct {
	core.Executor
	queries int
}

func (c *countingExecutor) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.queries++
	return c.Executor.QueryContext(ctx, query, args...)
}

type shelf struct {
	melville, hawthorne, dickinson Author
	mobyDick, typee, scarletLetter Book
}

// seedShelf stores three authors (Dickinson without books), three books
// and their tags.
func seedShelf(t *testing.T, ctx context.Context, ex core.Executor) shelf {
	t.Helper()
	s := shelf{
		melville:  Author{Name: "Herman Melville"},
		hawthorne: Author{Name: "Nathaniel Hawthorne"},
		dickinson: Author{Name: "Emily Dickinson"},
	}
	for _, a := range []*Author{&s.melville, &s.hawthorne, &s.dickinson} {
		require.NoError(t, Insert(ctx, ex, a))
	}

	s.mobyDick = Book{Title: "Moby-Dick", AuthorID: s.melville.ID, Year: 1851}
	s.typee = Book{Title: "Typee", AuthorID: s.melville.ID, Year: 1846}
	s.scarletLetter = Book{Title: "The Scarlet Letter", AuthorID: s.hawthorne.ID, Year: 1850}
	for _, b := range []*Book{&s.mobyDick, &s.typee, &s.scarletLetter} {
		require.NoError(t, Insert(ctx, ex, b))
	}

	for _, tag := range []*Tag{{Code: "sea", Label: "Sea"}, {Code: "classic", Label: "Classic"}, {Code: "romance", Label: "Romance"}} {
		require.NoError(t, Insert(ctx, ex, tag))
	}
	for _, bt := range []*BookTag{
		{BookID: s.mobyDick.ID, TagCode: "sea"},
		{BookID: s.mobyDick.ID, TagCode: "classic"},
		{BookID: s.typee.ID, TagCode: "sea"},
		{BookID: s.scarletLetter.ID, TagCode: "classic"},
	} {
		require.NoError(t, Insert(ctx, ex, bt))
	}
	return s
}

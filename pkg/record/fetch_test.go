package record

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/dialect"
	"github.com/leapstack-labs/leaprecord/pkg/query"
)

func TestFetch_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	born := time.Date(1819, time.August, 1, 0, 0, 0, 0, time.UTC)
	author := Author{Name: "Herman Melville", Born: &born}
	require.NoError(t, Insert(ctx, db, &author))
	require.NotZero(t, author.ID)

	book := Book{Title: "Moby-Dick", AuthorID: author.ID, Year: 1851}
	require.NoError(t, Insert(ctx, db, &book))

	gotBook, ok, err := For[Book]().FilterKey(book.ID).FetchOne(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, book, gotBook)

	gotAuthor, ok, err := For[Author]().FilterKey(author.ID).FetchOne(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, author.ID, gotAuthor.ID)
	assert.Equal(t, author.Name, gotAuthor.Name)
	require.NotNil(t, gotAuthor.Born)
	assert.True(t, born.Equal(*gotAuthor.Born), "born = %v", gotAuthor.Born)

	// nullable column round trips NULL
	anon := Author{Name: "Anonymous"}
	require.NoError(t, Insert(ctx, db, &anon))
	gotAnon, ok, err := For[Author]().FilterKey(anon.ID).FetchOne(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, gotAnon.Born)
}

func TestFetch_FetchOneMissing(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	_, ok, err := For[Book]().FilterKey(int64(42)).FetchOne(ctx, db)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = For[Book]().FilterKey(int64(42)).FetchOneComposite(ctx, db)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetch_FetchOneKeepsZeroLimit(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	s := seedShelf(t, ctx, db)

	none := For[Book]().Order(query.Asc("title")).Limit(0, 0)
	_, ok, err := none.FetchOne(ctx, db)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = none.Including(bookAuthor).FetchOneComposite(ctx, db)
	require.NoError(t, err)
	assert.False(t, ok)

	// a larger limit still yields the first record after the offset
	second, ok, err := For[Book]().Order(query.Asc("id")).Limit(5, 1).FetchOne(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.typee.ID, second.ID)
}

func TestFetch_AllCountAndOrder(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	s := seedShelf(t, ctx, db)

	books, err := For[Book]().Order(query.Asc("year")).FetchAll(ctx, db)
	require.NoError(t, err)
	require.Len(t, books, 3)
	assert.Equal(t, []string{"Typee", "The Scarlet Letter", "Moby-Dick"}, []string{books[0].Title, books[1].Title, books[2].Title})

	tests := []struct {
		name string
		req  Request[Book]
		want int64
	}{
		{"all", For[Book](), 3},
		{"filtered", For[Book]().Filter(query.Col("author_id").Eq(s.melville.ID)), 2},
		{"limited", For[Book]().Limit(2, 0), 2},
		{"offset past end", For[Book]().Limit(-1, 5), 0},
		{"no match", For[Book]().Filter(query.Col("year").Lt(1800)), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.req.FetchCount(ctx, db)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	second, ok, err := For[Book]().Order(query.Asc("year")).Limit(5, 1).FetchOne(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.scarletLetter, second)
}

// A deleted related record disappears from a fresh fetch while the
// composite fetched before keeps its snapshot.
func TestFetch_IncludedBooksAfterDelete(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	melville := Author{Name: "Herman Melville"}
	require.NoError(t, Insert(ctx, db, &melville))
	mobyDick := Book{Title: "Moby-Dick", AuthorID: melville.ID}
	require.NoError(t, Insert(ctx, db, &mobyDick))

	req := For[Author]().FilterKey(melville.ID).Including(authorBooks)
	before, ok, err := req.FetchOneComposite(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, melville, before.Record)
	assert.Equal(t, []Book{mobyDick}, authorBooks.All(before))

	removed, err := Delete(ctx, db, &mobyDick)
	require.NoError(t, err)
	assert.True(t, removed)

	after, ok, err := req.FetchOneComposite(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []Book{}, authorBooks.All(after))
	assert.True(t, after.Included("books"))
	assert.Equal(t, 0, after.Count("books"))

	assert.Equal(t, []Book{mobyDick}, authorBooks.All(before))
}

func TestFetch_ToManyCounts(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	seedShelf(t, ctx, db)

	authors, err := For[Author]().Order(query.Asc("name")).Including(authorBooks).FetchComposites(ctx, db)
	require.NoError(t, err)
	require.Len(t, authors, 3)

	for _, c := range authors {
		want, err := For[Book]().Filter(query.Col("author_id").Eq(c.Record.ID)).FetchCount(ctx, db)
		require.NoError(t, err)
		books := authorBooks.All(c)
		assert.NotNil(t, books, c.Record.Name)
		assert.Len(t, books, int(want), c.Record.Name)
		for _, b := range books {
			assert.Equal(t, c.Record.ID, b.AuthorID)
		}
	}
	assert.Equal(t, "Emily Dickinson", authors[0].Record.Name)
	assert.Empty(t, authorBooks.All(authors[0]))
}

func TestFetch_JoinedToOne(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	s := seedShelf(t, ctx, db)

	ex := &countingExecutor{Executor: db}
	books, err := For[Book]().Order(query.Asc("title")).Including(bookAuthor).FetchComposites(ctx, ex)
	require.NoError(t, err)
	assert.Equal(t, 1, ex.queries, "toOne includes keyed by the related primary key are joined")

	require.Len(t, books, 3)
	want := map[string]Author{
		"Moby-Dick":          s.melville,
		"The Scarlet Letter": s.hawthorne,
		"Typee":              s.melville,
	}
	for _, c := range books {
		a, ok := bookAuthor.One(c)
		require.True(t, ok, c.Record.Title)
		assert.Equal(t, want[c.Record.Title], a)
	}
}

func TestFetch_Prefetch(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	s := seedShelf(t, ctx, db)

	ex := &countingExecutor{Executor: db}
	authors, err := For[Author]().
		Order(query.Asc("name")).
		Including(authorBooks.With(For[Book]().Order(query.Desc("year")))).
		FetchComposites(ctx, ex)
	require.NoError(t, err)
	assert.Equal(t, 2, ex.queries, "one statement for the owners and one for the books")

	require.Len(t, authors, 3)
	assert.Equal(t, []Book{}, authorBooks.All(authors[0]))
	assert.Equal(t, []Book{s.mobyDick, s.typee}, authorBooks.All(authors[1]))
	assert.Equal(t, []Book{s.scarletLetter}, authorBooks.All(authors[2]))
}

func TestFetch_FilteredToOneIsPrefetched(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	s := seedShelf(t, ctx, db)

	ex := &countingExecutor{Executor: db}
	books, err := For[Book]().
		Order(query.Asc("title")).
		Including(bookAuthor.With(For[Author]().Filter(query.Col("name").Like("Herman%")))).
		FetchComposites(ctx, ex)
	require.NoError(t, err)
	assert.Equal(t, 2, ex.queries)

	require.Len(t, books, 3)
	a, ok := bookAuthor.One(books[0])
	require.True(t, ok)
	assert.Equal(t, s.melville, a)

	_, ok = bookAuthor.One(books[1])
	assert.False(t, ok, "The Scarlet Letter's author does not match the nested filter")
}

func TestFetch_NestedLimitPerOwner(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	s := seedShelf(t, ctx, db)

	latest := authorBooks.With(For[Book]().Order(query.Desc("year")).Limit(1, 0)).As("latest")
	oldest := authorBooks.With(For[Book]().Order(query.Asc("year")).Limit(1, 0)).As("oldest")
	rest := authorBooks.With(For[Book]().Order(query.Desc("year")).Limit(-1, 1)).As("rest")

	authors, err := For[Author]().
		Order(query.Asc("name")).
		Including(authorBooks, latest, oldest, rest).
		FetchComposites(ctx, db)
	require.NoError(t, err)
	require.Len(t, authors, 3)

	melville := authors[1]
	assert.Equal(t, []string{"books", "latest", "oldest", "rest"}, melville.Keys())
	assert.Len(t, authorBooks.All(melville), 2)
	assert.Equal(t, []Book{s.mobyDick}, latest.All(melville))
	assert.Equal(t, []Book{s.typee}, oldest.All(melville))
	assert.Equal(t, []Book{s.typee}, rest.All(melville))

	hawthorne := authors[2]
	assert.Equal(t, []Book{s.scarletLetter}, latest.All(hawthorne))
	assert.Equal(t, []Book{}, rest.All(hawthorne))

	dickinson := authors[0]
	assert.Equal(t, []Book{}, latest.All(dickinson))

	// a key that was not included
	assert.Nil(t, authorBooks.With(For[Book]()).As("missing").All(melville))
	assert.False(t, melville.Included("missing"))
}

func TestFetch_ManyToMany(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	s := seedShelf(t, ctx, db)

	books, err := For[Book]().
		Order(query.Asc("title")).
		Including(bookTags.With(For[Tag]().Order(query.Asc("label")))).
		FetchComposites(ctx, db)
	require.NoError(t, err)
	require.Len(t, books, 3)

	labels := func(tags []Tag) []string {
		out := make([]string, len(tags))
		for i, tag := range tags {
			out[i] = tag.Label
		}
		return out
	}
	assert.Equal(t, []string{"Classic", "Sea"}, labels(bookTags.All(books[0])))
	assert.Equal(t, []string{"Classic"}, labels(bookTags.All(books[1])))
	assert.Equal(t, []string{"Sea"}, labels(bookTags.All(books[2])))

	tags, err := For[Tag]().Order(query.Asc("code")).Including(tagBooks.With(For[Book]().Order(query.Asc("year")))).FetchComposites(ctx, db)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, []Book{s.scarletLetter, s.mobyDick}, tagBooks.All(tags[0]))
	assert.Equal(t, []Book{}, tagBooks.All(tags[1]))
	assert.Equal(t, []Book{s.typee, s.mobyDick}, tagBooks.All(tags[2]))
}

func TestFetch_NestedIncludes(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	s := seedShelf(t, ctx, db)

	ex := &countingExecutor{Executor: db}
	author, ok, err := For[Author]().
		FilterKey(s.melville.ID).
		Including(authorBooks.With(For[Book]().Order(query.Asc("title")).Including(bookTags, bookAuthor))).
		FetchOneComposite(ctx, ex)
	require.NoError(t, err)
	require.True(t, ok)
	// owners, books joined with their author, tags
	assert.Equal(t, 3, ex.queries)

	books := authorBooks.Composites(author)
	require.Len(t, books, 2)
	assert.Equal(t, s.mobyDick, books[0].Record)
	assert.Len(t, bookTags.All(books[0]), 2)
	assert.Len(t, bookTags.All(books[1]), 1)

	back, ok := bookAuthor.One(books[1])
	require.True(t, ok)
	assert.Equal(t, s.melville, back)

	related := author.Related("books")
	require.Len(t, related, 2)
	assert.IsType(t, Book{}, related[0])
}

func TestFetch_SelfReference(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	ceo := Employee{ID: 1, Name: "Ahab"}
	mate := Employee{ID: 2, Name: "Starbuck", ManagerID: &ceo.ID}
	harpooner := Employee{ID: 3, Name: "Queequeg", ManagerID: &mate.ID}
	_, err := ApplyBatch(ctx, db, []Write{InsertWrite(&ceo), InsertWrite(&mate), InsertWrite(&harpooner)}, PreserveOrder())
	require.NoError(t, err)

	staff, err := For[Employee]().
		Order(query.Asc("id")).
		Including(manager, reports.With(For[Employee]().Order(query.Asc("name")))).
		FetchComposites(ctx, db)
	require.NoError(t, err)
	require.Len(t, staff, 3)

	_, ok := manager.One(staff[0])
	assert.False(t, ok)
	assert.Equal(t, []Employee{mate}, reports.All(staff[0]))

	boss, ok := manager.One(staff[2])
	require.True(t, ok)
	assert.Equal(t, mate, boss)
	assert.Equal(t, []Employee{}, reports.All(staff[2]))
}

func TestFetch_DecodingErrors(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	_, err := db.ExecContext(ctx, `INSERT INTO readings (id, pages) VALUES (1, 'many'), (2, NULL)`)
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     int64
		wantMsg string
	}{
		{"unconvertible value", 1, "readings.pages"},
		{"null into non-pointer field", 2, "NULL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := For[Reading]().FilterKey(tt.key).FetchOne(ctx, db)
			var decErr *core.DecodingError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, "readings", decErr.Table)
			assert.Equal(t, "pages", decErr.Column)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	t.Run("missing column", func(t *testing.T) {
		m, err := MappingOf[Reading]()
		require.NoError(t, err)
		rs := &resultSet{columns: map[string]int{"id": 0}}
		_, err = decodeRecord(m, rs, "", []any{int64(1)})
		var decErr *core.DecodingError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, "pages", decErr.Column)
	})
}

func TestFetch_EmptyResult(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	ex := &countingExecutor{Executor: db}
	authors, err := For[Author]().Including(authorBooks).FetchComposites(ctx, ex)
	require.NoError(t, err)
	assert.Empty(t, authors)
	assert.Equal(t, 1, ex.queries, "no prefetch without owners")
}

func TestChunking(t *testing.T) {
	keys := make([][]any, 7)
	for i := range keys {
		keys[i] = []any{i}
	}
	chunks := chunkKeys(keys, 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[2], 1)
	assert.Empty(t, chunkKeys(nil, 3))

	assert.Equal(t, prefetchChunkSize, chunkSize(dialect.SQLite, 1))
	assert.Equal(t, 2, chunkSize(&core.DialectConfig{MaxParameters: 5}, 2))
	assert.Equal(t, 1, chunkSize(&core.DialectConfig{MaxParameters: 1}, 3))
	assert.Equal(t, prefetchChunkSize, chunkSize(nil, 2))
}

func TestFetch_PrefetchAcrossChunks(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	const authors = prefetchChunkSize + 20
	writes := make([]Write, 0, authors*2)
	for i := 1; i <= authors; i++ {
		a := &Author{ID: int64(i), Name: "author " + strconv.Itoa(i)}
		b := &Book{ID: int64(i), Title: "book", AuthorID: int64(i)}
		writes = append(writes, InsertWrite(a), InsertWrite(b))
	}
	_, err := ApplyBatch(ctx, db, writes)
	require.NoError(t, err)

	ex := &countingExecutor{Executor: db}
	all, err := For[Author]().Including(authorBooks).FetchComposites(ctx, ex)
	require.NoError(t, err)
	require.Len(t, all, authors)
	assert.Equal(t, 3, ex.queries)
	for _, c := range all {
		books := authorBooks.All(c)
		require.Len(t, books, 1)
		assert.Equal(t, c.Record.ID, books[0].AuthorID)
	}
}

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/query"
	"github.com/leapstack-labs/leaprecord/pkg/record"
)

// Catalog reads and writes the bookshelf through a database.
type Catalog struct {
	db     core.Transactor
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Catalog over db.
// The logger parameter may be nil (uses a discard logger).
func New(db core.Transactor, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{db: db, logger: logger, now: time.Now}
}

// Register builds the mappings of every catalog record.
func Register() error {
	for _, register := range []func() error{
		record.Register[Author],
		record.Register[Book],
		record.Register[Tag],
		record.Register[BookTag],
		record.Register[Review],
	} {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

// AuthorEntry is an author with the books they wrote.
type AuthorEntry struct {
	Author `yaml:",inline"`
	Books  []BookEntry `json:"books,omitempty" yaml:"books,omitempty"`
}

// BookEntry is a book with its author name, tag names and reviews, as far
// as they were requested.
type BookEntry struct {
	Book    `yaml:",inline"`
	Author  string   `json:"author,omitempty" yaml:"author,omitempty"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Reviews []Review `json:"reviews,omitempty" yaml:"reviews,omitempty"`
}

// TagEntry is a tag with the number of books carrying it.
type TagEntry struct {
	Tag   `yaml:",inline"`
	Books int `json:"books" yaml:"books"`
}

// ListOptions narrows Authors.
type ListOptions struct {
	// NamePrefix keeps authors whose name starts with it.
	NamePrefix string
	// WithBooks includes each author's books and their tags.
	WithBooks bool
	// Limit caps the number of authors; zero means no cap.
	Limit  int
	Offset int
}

// AddAuthor inserts a new author and sets its ID.
func (c *Catalog) AddAuthor(ctx context.Context, a *Author) error {
	if err := record.Insert(ctx, c.db, a); err != nil {
		return err
	}
	c.logger.Debug("author added", "id", a.ID, "name", a.Name)
	return nil
}

// Authors lists authors ordered by name.
func (c *Catalog) Authors(ctx context.Context, opts ListOptions) ([]AuthorEntry, error) {
	req := record.For[Author]().Order(query.Asc("name"))
	if opts.NamePrefix != "" {
		req = req.Filter(query.Col("name").Like(opts.NamePrefix + "%"))
	}
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		req = req.Limit(limit, opts.Offset)
	}
	books := record.For[Book]().
		Order(query.Asc("year"), query.Asc("title")).
		Including(BookTags.With(record.For[Tag]().Order(query.Asc("name"))))
	if opts.WithBooks {
		req = req.Including(AuthorBooks.With(books))
	}

	found, err := req.FetchComposites(ctx, c.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	out := make([]AuthorEntry, len(found))
	for i, a := range found {
		out[i].Author = a.Record
		for _, b := range AuthorBooks.With(books).Composites(a) {
			out[i].Books = append(out[i].Books, BookEntry{Book: b.Record, Tags: tagNames(BookTags.All(b))})
		}
	}
	return out, nil
}

// DeleteAuthor deletes the author with id and reports whether it existed.
// Without cascade an author who still has books is refused with a foreign
// key *core.ConstraintViolationError. With cascade the author's books, their
// tag links and their reviews are deleted in the same transaction.
func (c *Catalog) DeleteAuthor(ctx context.Context, id int64, cascade bool) (bool, error) {
	if !cascade {
		return record.DeleteKey[Author](ctx, c.db, id)
	}

	books := record.For[Book]().Including(BookTagLinks, BookReviews)
	found, ok, err := record.For[Author]().
		FilterKey(id).
		Including(AuthorBooks.With(books)).
		FetchOneComposite(ctx, c.db)
	if err != nil || !ok {
		return false, err
	}

	author := found.Record
	batch := record.Batch{record.DeleteWrite(&author)}
	for _, b := range AuthorBooks.With(books).Composites(found) {
		batch = append(batch, bookDeletes(b)...)
	}
	if _, err := batch.Apply(ctx, c.db, record.WithLogger(c.logger)); err != nil {
		return false, err
	}
	c.logger.Debug("author deleted", "id", id, "writes", len(batch))
	return true, nil
}

// AddBook inserts b and links it to the named tags, creating the tags that
// do not exist yet. Everything is written in one transaction.
func (c *Catalog) AddBook(ctx context.Context, b *Book, tags ...string) error {
	names := normalizeNames(tags)
	existing, err := c.tagsByName(ctx, names)
	if err != nil {
		return err
	}

	batch := record.Batch{}
	links := make([]*BookTag, 0, len(names))
	for _, name := range names {
		link := &BookTag{}
		links = append(links, link)
		if t, ok := existing[name]; ok {
			link.TagID = t.ID
			continue
		}
		t := &Tag{Name: name}
		batch = append(batch, record.InsertWrite(t).AfterApply(func() { link.TagID = t.ID }))
	}
	batch = append(batch, record.InsertWrite(b).AfterApply(func() {
		for _, link := range links {
			link.BookID = b.ID
		}
	}))
	for _, link := range links {
		batch = append(batch, record.InsertWrite(link))
	}

	if _, err := batch.Apply(ctx, c.db, record.WithLogger(c.logger)); err != nil {
		return err
	}
	c.logger.Debug("book added", "id", b.ID, "title", b.Title, "tags", len(names))
	return nil
}

// Book returns the book with id together with its author, tags and
// reviews, newest review first.
func (c *Catalog) Book(ctx context.Context, id int64) (BookEntry, bool, error) {
	found, ok, err := record.For[Book]().
		FilterKey(id).
		Including(
			BookAuthor,
			BookTags.With(record.For[Tag]().Order(query.Asc("name"))),
			BookReviews.With(record.For[Review]().Order(query.Desc("created_at"), query.Desc("id"))),
		).
		FetchOneComposite(ctx, c.db)
	if err != nil || !ok {
		return BookEntry{}, false, err
	}

	entry := BookEntry{
		Book:    found.Record,
		Tags:    tagNames(BookTags.All(found)),
		Reviews: BookReviews.All(found),
	}
	if a, ok := BookAuthor.One(found); ok {
		entry.Author = a.Name
	}
	return entry, true, nil
}

// DeleteBook deletes the book with id together with its tag links and
// reviews, and reports whether it existed.
func (c *Catalog) DeleteBook(ctx context.Context, id int64) (bool, error) {
	found, ok, err := record.For[Book]().
		FilterKey(id).
		Including(BookTagLinks, BookReviews).
		FetchOneComposite(ctx, c.db)
	if err != nil || !ok {
		return false, err
	}
	if _, err := record.ApplyBatch(ctx, c.db, bookDeletes(found), record.WithLogger(c.logger)); err != nil {
		return false, err
	}
	return true, nil
}

// bookDeletes lists the deletes removing a book fetched with its tag links
// and reviews. The batch orders them children first.
func bookDeletes(b record.Composite[Book]) []record.Write {
	book := b.Record
	writes := []record.Write{record.DeleteWrite(&book)}
	for _, link := range BookTagLinks.All(b) {
		writes = append(writes, record.DeleteWrite(&link))
	}
	for _, r := range BookReviews.All(b) {
		writes = append(writes, record.DeleteWrite(&r))
	}
	return writes
}

// AddTag inserts a new tag, generating its ID.
func (c *Catalog) AddTag(ctx context.Context, t *Tag) error {
	t.Name = strings.TrimSpace(t.Name)
	return record.Insert(ctx, c.db, t)
}

// Tags lists every tag by name with the number of books carrying it.
func (c *Catalog) Tags(ctx context.Context) ([]TagEntry, error) {
	found, err := record.For[Tag]().
		Order(query.Asc("name")).
		Including(TagBooks).
		FetchComposites(ctx, c.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	out := make([]TagEntry, len(found))
	for i, t := range found {
		out[i] = TagEntry{Tag: t.Record, Books: t.Count(TagBooks.Name())}
	}
	return out, nil
}

// AddReview inserts a review, stamping CreatedAt when it is zero.
func (c *Catalog) AddReview(ctx context.Context, r *Review) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = c.now().UTC()
	}
	return record.Insert(ctx, c.db, r)
}

func (c *Catalog) tagsByName(ctx context.Context, names []string) (map[string]Tag, error) {
	out := make(map[string]Tag, len(names))
	if len(names) == 0 {
		return out, nil
	}
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	tags, err := record.For[Tag]().Filter(query.Col("name").In(values...)).FetchAll(ctx, c.db)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tags: %w", err)
	}
	for _, t := range tags {
		out[t.Name] = t
	}
	return out, nil
}

func tagNames(tags []Tag) []string {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// normalizeNames trims names and drops blanks and duplicates, keeping the
// first occurrence.
func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

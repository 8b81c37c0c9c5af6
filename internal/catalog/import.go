package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaprecord/pkg/query"
	"github.com/leapstack-labs/leaprecord/pkg/record"
)

// Document is the YAML import format.
//
//	tags: [sea]
//	authors:
//	  - name: Herman Melville
//	    birth_year: 1819
//	    books:
//	      - title: Moby-Dick
//	        year: 1851
//	        price: "12.50"
//	        tags: [sea, classic]
//	        reviews:
//	          - rating: 5
//	            body: Call me Ishmael.
type Document struct {
	Tags    []string         `yaml:"tags"`
	Authors []AuthorDocument `yaml:"authors"`
}

// AuthorDocument is an author entry of a Document.
type AuthorDocument struct {
	Name      string         `yaml:"name"`
	BirthYear *int           `yaml:"birth_year"`
	Books     []BookDocument `yaml:"books"`
}

// BookDocument is a book entry of a Document.
type BookDocument struct {
	Title   string           `yaml:"title"`
	Year    int              `yaml:"year"`
	Price   string           `yaml:"price"`
	Tags    []string         `yaml:"tags"`
	Reviews []ReviewDocument `yaml:"reviews"`
}

// ReviewDocument is a review entry of a Document.
type ReviewDocument struct {
	Rating    int        `yaml:"rating"`
	Body      string     `yaml:"body"`
	CreatedAt *time.Time `yaml:"created_at"`
}

// ImportSummary counts what an import wrote.
type ImportSummary struct {
	Authors       int `json:"authors" yaml:"authors"`
	ReusedAuthors int `json:"reused_authors" yaml:"reused_authors"`
	Books         int `json:"books" yaml:"books"`
	Tags          int `json:"tags" yaml:"tags"`
	ReusedTags    int `json:"reused_tags" yaml:"reused_tags"`
	Links         int `json:"links" yaml:"links"`
	Reviews       int `json:"reviews" yaml:"reviews"`
}

// ParseDocument decodes a YAML import document. Unknown fields are errors.
// An empty input is an empty document.
func ParseDocument(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse import document: %w", err)
	}
	return &doc, nil
}

// Import writes the document in a single dependency-ordered batch. Authors
// and tags that already exist, matched by name, are reused; everything else
// is inserted. Keys assigned by storage flow from authors to their books
// and from books and tags to links and reviews as the batch runs parents
// first. Nothing is written when any record fails.
func (c *Catalog) Import(ctx context.Context, doc *Document) (*ImportSummary, error) {
	var authorNames, allTags []string
	allTags = append(allTags, doc.Tags...)
	for _, a := range doc.Authors {
		authorNames = append(authorNames, strings.TrimSpace(a.Name))
		for _, b := range a.Books {
			allTags = append(allTags, b.Tags...)
		}
	}
	authorNames = normalizeNames(authorNames)
	tagNames := normalizeNames(allTags)

	existingAuthors, err := c.authorsByName(ctx, authorNames)
	if err != nil {
		return nil, err
	}
	existingTags, err := c.tagsByName(ctx, tagNames)
	if err != nil {
		return nil, err
	}

	sum := &ImportSummary{}
	p := &importPlan{
		tags:     make(map[string]*Tag, len(tagNames)),
		tagLinks: make(map[string][]*BookTag),
		now:      c.now().UTC(),
		authors:  make(map[string]*plannedAuthor),
		existing: existingAuthors,
	}

	for _, name := range tagNames {
		if t, ok := existingTags[name]; ok {
			p.tags[name] = &t
			sum.ReusedTags++
			continue
		}
		p.tags[name] = &Tag{Name: name}
		sum.Tags++
	}

	for i, ad := range doc.Authors {
		pa := p.author(ad, sum)
		for j, bd := range ad.Books {
			if err := p.book(pa, bd, sum); err != nil {
				return nil, fmt.Errorf("author %d (%s) book %d: %w", i, ad.Name, j, err)
			}
		}
	}

	// tags are complete once every book has registered its links
	for _, name := range tagNames {
		t := p.tags[name]
		links := p.tagLinks[name]
		if t.ID != "" {
			for _, l := range links {
				l.TagID = t.ID
			}
			continue
		}
		p.writes = append(p.writes, record.InsertWrite(t).AfterApply(func() {
			for _, l := range links {
				l.TagID = t.ID
			}
		}))
	}

	if _, err := record.ApplyBatch(ctx, c.db, p.writes, record.WithLogger(c.logger)); err != nil {
		return nil, fmt.Errorf("failed to import: %w", err)
	}
	c.logger.Info("import applied",
		"authors", sum.Authors, "books", sum.Books, "tags", sum.Tags,
		"links", sum.Links, "reviews", sum.Reviews)
	return sum, nil
}

type plannedAuthor struct {
	author *Author
	books  []*Book
}

type importPlan struct {
	writes   []record.Write
	authors  map[string]*plannedAuthor
	existing map[string]Author
	tags     map[string]*Tag
	tagLinks map[string][]*BookTag
	now      time.Time
}

func (p *importPlan) author(ad AuthorDocument, sum *ImportSummary) *plannedAuthor {
	name := strings.TrimSpace(ad.Name)
	if pa, ok := p.authors[name]; ok {
		return pa
	}
	pa := &plannedAuthor{}
	p.authors[name] = pa

	if a, ok := p.existing[name]; ok {
		pa.author = &a
		sum.ReusedAuthors++
		return pa
	}
	pa.author = &Author{Name: name, BirthYear: ad.BirthYear}
	p.writes = append(p.writes, record.InsertWrite(pa.author).AfterApply(func() {
		for _, b := range pa.books {
			b.AuthorID = pa.author.ID
		}
	}))
	sum.Authors++
	return pa
}

func (p *importPlan) book(pa *plannedAuthor, bd BookDocument, sum *ImportSummary) error {
	b := &Book{AuthorID: pa.author.ID, Title: strings.TrimSpace(bd.Title), Year: bd.Year}
	if bd.Price != "" {
		price, err := decimal.NewFromString(bd.Price)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", bd.Price, err)
		}
		b.Price = price
	}
	pa.books = append(pa.books, b)

	var links []*BookTag
	for _, name := range normalizeNames(bd.Tags) {
		l := &BookTag{}
		links = append(links, l)
		p.tagLinks[name] = append(p.tagLinks[name], l)
	}
	reviews := make([]*Review, len(bd.Reviews))
	for i, rd := range bd.Reviews {
		r := &Review{Rating: rd.Rating, Body: rd.Body, CreatedAt: p.now}
		if rd.CreatedAt != nil {
			r.CreatedAt = rd.CreatedAt.UTC()
		}
		reviews[i] = r
	}

	p.writes = append(p.writes, record.InsertWrite(b).AfterApply(func() {
		for _, l := range links {
			l.BookID = b.ID
		}
		for _, r := range reviews {
			r.BookID = b.ID
		}
	}))
	for _, l := range links {
		p.writes = append(p.writes, record.InsertWrite(l))
	}
	for _, r := range reviews {
		p.writes = append(p.writes, record.InsertWrite(r))
	}

	sum.Books++
	sum.Links += len(links)
	sum.Reviews += len(reviews)
	return nil
}

func (c *Catalog) authorsByName(ctx context.Context, names []string) (map[string]Author, error) {
	out := make(map[string]Author, len(names))
	if len(names) == 0 {
		return out, nil
	}
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	authors, err := record.For[Author]().Filter(query.Col("name").In(values...)).FetchAll(ctx, c.db)
	if err != nil {
		return nil, fmt.Errorf("failed to look up authors: %w", err)
	}
	for _, a := range authors {
		out[a.Name] = a
	}
	return out, nil
}

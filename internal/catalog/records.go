// Package catalog is a small bookshelf domain built on the record layer:
// authors write books, books carry tags and reviews. It owns its schema
// migrations and is what the leaprecord command operates on.
package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/leapstack-labs/leaprecord/pkg/record"
)

// Author is a person books are attributed to.
type Author struct {
	ID        int64  `db:"id,pk,auto" json:"id" yaml:"id"`
	Name      string `db:"name" validate:"required,max=200" json:"name" yaml:"name"`
	BirthYear *int   `db:"birth_year" validate:"omitempty,gte=1,lte=2100" json:"birth_year,omitempty" yaml:"birth_year,omitempty"`
}

func (Author) TableName() string { return "authors" }

func (a *Author) Validate() error { return validateRecord(a) }

// Book is written by exactly one author.
type Book struct {
	ID       int64           `db:"id,pk,auto" json:"id" yaml:"id"`
	AuthorID int64           `db:"author_id" validate:"required" json:"author_id" yaml:"author_id"`
	Title    string          `db:"title" validate:"required,max=500" json:"title" yaml:"title"`
	Year     int             `db:"year" validate:"omitempty,gte=1,lte=2100" json:"year,omitempty" yaml:"year,omitempty"`
	Price    decimal.Decimal `db:"price" json:"price" yaml:"price"`
}

func (Book) TableName() string { return "books" }

func (Book) ForeignKeys() []record.ForeignKey {
	return []record.ForeignKey{record.References[Author]("author_id")}
}

func (b *Book) Validate() error {
	if err := validateRecord(b); err != nil {
		return err
	}
	if b.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	return nil
}

// Tag labels books. Its key is a generated UUID.
type Tag struct {
	ID   string `db:"id,pk" json:"id" yaml:"id"`
	Name string `db:"name" validate:"required,max=64" json:"name" yaml:"name"`
}

func (Tag) TableName() string { return "tags" }

func (t *Tag) Validate() error { return validateRecord(t) }

func (t *Tag) GenerateKey() error {
	t.ID = uuid.NewString()
	return nil
}

// BookTag links a book to a tag.
type BookTag struct {
	BookID int64  `db:"book_id,pk" json:"book_id" yaml:"book_id"`
	TagID  string `db:"tag_id,pk" json:"tag_id" yaml:"tag_id"`
}

func (BookTag) TableName() string { return "book_tags" }

func (BookTag) ForeignKeys() []record.ForeignKey {
	return []record.ForeignKey{
		record.References[Book]("book_id"),
		record.References[Tag]("tag_id"),
	}
}

// Review is a reader's rating of a book.
type Review struct {
	ID        int64     `db:"id,pk,auto" json:"id" yaml:"id"`
	BookID    int64     `db:"book_id" validate:"required" json:"book_id" yaml:"book_id"`
	Rating    int       `db:"rating" validate:"gte=1,lte=5" json:"rating" yaml:"rating"`
	Body      string    `db:"body" validate:"max=2000" json:"body,omitempty" yaml:"body,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"created_at"`
}

func (Review) TableName() string { return "reviews" }

func (Review) ForeignKeys() []record.ForeignKey {
	return []record.ForeignKey{record.References[Book]("book_id")}
}

func (r *Review) Validate() error { return validateRecord(r) }

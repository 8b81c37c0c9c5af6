package catalog

import "github.com/leapstack-labs/leaprecord/pkg/record"

// Associations between catalog records.
var (
	AuthorBooks = record.Must(record.HasMany[Author, Book]("books"))
	BookAuthor  = AuthorBooks.Inverse("author")

	BookTags = record.Must(record.ManyToMany[Book, Tag, BookTag]("tags"))
	TagBooks = BookTags.Inverse("books")

	// BookTagLinks reaches the link rows themselves, for deleting them.
	BookTagLinks = record.Must(record.HasMany[Book, BookTag]("tag_links"))

	BookReviews = record.Must(record.HasMany[Book, Review]("reviews"))
	ReviewBook  = BookReviews.Inverse("book")
)

// Package record maps plain Go structs to table rows and reads and writes
// them explicitly.
//
// A record is any struct of scalar fields. Its key mapping comes from struct
// tags:
//
//	type Book struct {
//		ID       int64  `db:"id,pk,auto"`
//		Title    string `db:"title"`
//		AuthorID int64  `db:"author_id"`
//	}
//
//	func (Book) ForeignKeys() []record.ForeignKey {
//		return []record.ForeignKey{record.References[Author]("author_id")}
//	}
//
// Records never point at each other. Relationships are declared once as
// associations and only followed when a request asks for them:
//
//	var authorBooks = record.Must(record.HasMany[Author, Book]("books"))
//
//	req := record.For[Author]().
//		FilterKey(id).
//		Including(authorBooks.With(record.For[Book]().Order(query.Asc("title"))))
//	authors, err := req.FetchComposites(ctx, db)
//	books := authorBooks.All(authors[0])
//
// Fetched values are snapshots. Writes go through Insert, Update, Delete and
// Save, one record at a time, or through ApplyBatch, which orders a list of
// writes by foreign key dependencies and runs it in one transaction.
package record

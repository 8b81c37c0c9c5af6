package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprecord/internal/catalog"
)

// NewBooksCommand creates the books command and its subcommands.
func NewBooksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Manage books",
	}
	cmd.AddCommand(newBooksAddCommand(), newBooksShowCommand(), newBooksDeleteCommand(), newBooksReviewCommand())
	return cmd
}

func newBooksAddCommand() *cobra.Command {
	var (
		authorID int64
		year     int
		price    string
		tags     []string
	)

	cmd := &cobra.Command{
		Use:     "add <title>",
		Short:   "Add a book",
		Example: `  leaprecord books add "Moby-Dick" --author 1 --year 1851 --price 12.50 --tag sea --tag classic`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := catalog.Book{AuthorID: authorID, Title: strings.TrimSpace(args[0]), Year: year}
			if price != "" {
				p, err := decimal.NewFromString(price)
				if err != nil {
					return fmt.Errorf("invalid price %q: %w", price, err)
				}
				b.Price = p
			}

			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.Catalog.AddBook(cmd.Context(), &b, tags...); err != nil {
				return err
			}
			return cc.Output.Render(b, func(t table.Writer) {
				t.AppendHeader(table.Row{"ID", "Title", "Author", "Year", "Price"})
				t.AppendRow(table.Row{b.ID, b.Title, b.AuthorID, b.Year, b.Price.StringFixed(2)})
			})
		},
	}

	cmd.Flags().Int64Var(&authorID, "author", 0, "ID of the author (required)")
	cmd.Flags().IntVar(&year, "year", 0, "Publication year")
	cmd.Flags().StringVar(&price, "price", "", "Price, e.g. 12.50")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag name (repeatable); missing tags are created")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func newBooksShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a book with its author, tags and reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			b, ok, err := cc.Catalog.Book(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("book %d not found", id)
			}
			return cc.Output.Render(b, func(t table.Writer) {
				t.AppendRows([]table.Row{
					{"ID", b.ID},
					{"Title", b.Title},
					{"Author", b.Author},
					{"Year", b.Year},
					{"Price", b.Price.StringFixed(2)},
					{"Tags", strings.Join(b.Tags, ", ")},
				})
				for _, r := range b.Reviews {
					t.AppendRow(table.Row{"Review", fmt.Sprintf("%s %s %s", strings.Repeat("*", r.Rating), r.CreatedAt.Format("2006-01-02"), r.Body)})
				}
			})
		},
	}
}

func newBooksDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a book with its tag links and reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			removed, err := cc.Catalog.DeleteBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("book %d not found", id)
			}
			cc.Output.Printf("Deleted book %d\n", id)
			return nil
		},
	}
}

func newBooksReviewCommand() *cobra.Command {
	var (
		rating int
		body   string
	)

	cmd := &cobra.Command{
		Use:     "review <id>",
		Short:   "Review a book",
		Example: `  leaprecord books review 1 --rating 5 --body "Call me Ishmael."`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			r := catalog.Review{BookID: id, Rating: rating, Body: body}
			if err := cc.Catalog.AddReview(cmd.Context(), &r); err != nil {
				return err
			}
			cc.Output.Printf("Added review %d\n", r.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&rating, "rating", 0, "Rating from 1 to 5 (required)")
	cmd.Flags().StringVar(&body, "body", "", "Review text")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

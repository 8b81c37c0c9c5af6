package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprecord/internal/catalog"
)

// NewAuthorsCommand creates the authors command and its subcommands.
func NewAuthorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authors",
		Short: "Manage authors",
	}
	cmd.AddCommand(newAuthorsAddCommand(), newAuthorsListCommand(), newAuthorsDeleteCommand())
	return cmd
}

func newAuthorsAddCommand() *cobra.Command {
	var birthYear int

	cmd := &cobra.Command{
		Use:     "add <name>",
		Short:   "Add an author",
		Example: `  leaprecord authors add "Herman Melville" --birth-year 1819`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			a := catalog.Author{Name: strings.TrimSpace(args[0])}
			if cmd.Flags().Changed("birth-year") {
				a.BirthYear = &birthYear
			}
			if err := cc.Catalog.AddAuthor(cmd.Context(), &a); err != nil {
				return err
			}
			return cc.Output.Render(a, func(t table.Writer) {
				t.AppendHeader(table.Row{"ID", "Name"})
				t.AppendRow(table.Row{a.ID, a.Name})
			})
		},
	}

	cmd.Flags().IntVar(&birthYear, "birth-year", 0, "Year the author was born")
	return cmd
}

func newAuthorsListCommand() *cobra.Command {
	var opts catalog.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List authors",
		Example: `  # Authors with their books and tags
  leaprecord authors list --with-books

  # As JSON
  leaprecord authors list -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			authors, err := cc.Catalog.Authors(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return cc.Output.Render(authors, func(t table.Writer) {
				header := table.Row{"ID", "Name", "Born"}
				if opts.WithBooks {
					header = append(header, "Books")
				}
				t.AppendHeader(header)
				for _, a := range authors {
					row := table.Row{a.ID, a.Name, yearOrDash(a.BirthYear)}
					if opts.WithBooks {
						row = append(row, bookSummary(a.Books))
					}
					t.AppendRow(row)
				}
				t.AppendFooter(table.Row{"", fmt.Sprintf("%d authors", len(authors))})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.WithBooks, "with-books", false, "Include each author's books")
	cmd.Flags().StringVar(&opts.NamePrefix, "prefix", "", "Only authors whose name starts with this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of authors")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of authors to skip")
	return cmd
}

func newAuthorsDeleteCommand() *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an author",
		Long: `Delete an author. An author who still has books is refused unless
--cascade is given, which also deletes the books with their tag links and
reviews in one transaction.`,
		Args: cobra.ExactArgs(1),
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

			removed, err := cc.Catalog.DeleteAuthor(cmd.Context(), id, cascade)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("author %d not found", id)
			}
			cc.Output.Printf("Deleted author %d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "Also delete the author's books")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func yearOrDash(y *int) string {
	if y == nil {
		return "-"
	}
	return strconv.Itoa(*y)
}

func bookSummary(books []catalog.BookEntry) string {
	lines := make([]string, len(books))
	for i, b := range books {
		lines[i] = fmt.Sprintf("%s (%d)", b.Title, b.Year)
		if len(b.Tags) > 0 {
			lines[i] += " [" + strings.Join(b.Tags, ", ") + "]"
		}
	}
	return strings.Join(lines, "\n")
}

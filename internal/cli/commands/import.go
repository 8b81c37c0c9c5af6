package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprecord/internal/catalog"
)

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import authors, books, tags and reviews from YAML",
		Long: `Import a YAML document in a single transaction. Writes are ordered by the
foreign keys between the catalog tables, so parents are written before the
records that reference them. Existing authors and tags are matched by name.
Use - to read from standard input.`,
		Example: `  leaprecord import shelf.yaml
  cat shelf.yaml | leaprecord import -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open import file: %w", err)
				}
				defer func() { _ = f.Close() }()
				r = f
			}
			doc, err := catalog.ParseDocument(r)
			if err != nil {
				return err
			}

			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sum, err := cc.Catalog.Import(cmd.Context(), doc)
			if err != nil {
				return err
			}
			return cc.Output.Render(sum, func(t table.Writer) {
				t.AppendHeader(table.Row{"Records", "Inserted", "Reused"})
				t.AppendRows([]table.Row{
					{"authors", sum.Authors, sum.ReusedAuthors},
					{"books", sum.Books, ""},
					{"tags", sum.Tags, sum.ReusedTags},
					{"book tags", sum.Links, ""},
					{"reviews", sum.Reviews, ""},
				})
			})
		},
	}
}

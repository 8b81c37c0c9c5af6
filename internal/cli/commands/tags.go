package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprecord/internal/catalog"
)

// NewTagsCommand creates the tags command and its subcommands.
func NewTagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Manage tags",
	}
	cmd.AddCommand(newTagsAddCommand(), newTagsListCommand())
	return cmd
}

func newTagsAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Add a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tag := catalog.Tag{Name: args[0]}
			if err := cc.Catalog.AddTag(cmd.Context(), &tag); err != nil {
				return err
			}
			return cc.Output.Render(tag, func(t table.Writer) {
				t.AppendHeader(table.Row{"ID", "Name"})
				t.AppendRow(table.Row{tag.ID, tag.Name})
			})
		},
	}
}

func newTagsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tags with their book counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tags, err := cc.Catalog.Tags(cmd.Context())
			if err != nil {
				return err
			}
			return cc.Output.Render(tags, func(t table.Writer) {
				t.AppendHeader(table.Row{"Name", "Books", "ID"})
				for _, tag := range tags {
					t.AppendRow(table.Row{tag.Name, tag.Books, tag.ID})
				}
			})
		},
	}
}

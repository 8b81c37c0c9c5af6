package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprecord/internal/catalog"
	"github.com/leapstack-labs/leaprecord/pkg/record"
)

type columnView struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Nullable   bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Auto       bool   `json:"auto,omitempty" yaml:"auto,omitempty"`
}

type mappingView struct {
	Table       string       `json:"table" yaml:"table"`
	Type        string       `json:"type" yaml:"type"`
	Columns     []columnView `json:"columns" yaml:"columns"`
	PrimaryKey  []string     `json:"primary_key" yaml:"primary_key"`
	ForeignKeys []string     `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
}

// NewMappingsCommand creates the mappings command.
func NewMappingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mappings",
		Short: "Show the key mappings of the catalog records",
		Long: `Show how each catalog record maps to its table: columns, primary key
and foreign keys. No database connection is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContextWithoutDB(cmd)
			if err := catalog.Register(); err != nil {
				return err
			}

			mappings := record.Mappings()
			views := make([]mappingView, len(mappings))
			for i, m := range mappings {
				views[i] = newMappingView(m)
			}

			return cc.Output.Render(views, func(t table.Writer) {
				t.AppendHeader(table.Row{"Table", "Type", "Columns", "Primary Key", "Foreign Keys"})
				for _, v := range views {
					cols := make([]string, len(v.Columns))
					for i, c := range v.Columns {
						cols[i] = c.Name + " " + c.Type
						if c.Nullable {
							cols[i] += "?"
						}
					}
					t.AppendRow(table.Row{
						v.Table,
						v.Type,
						strings.Join(cols, "\n"),
						strings.Join(v.PrimaryKey, ", "),
						strings.Join(v.ForeignKeys, "\n"),
					})
				}
			})
		},
	}
}

func newMappingView(m *record.KeyMapping) mappingView {
	v := mappingView{
		Table:      m.Table(),
		Type:       m.Type().String(),
		PrimaryKey: m.PrimaryKey(),
	}
	for _, c := range m.Columns() {
		v.Columns = append(v.Columns, columnView{
			Name:       c.Name,
			Type:       c.Type.String(),
			Nullable:   c.Nullable,
			PrimaryKey: c.PrimaryKey,
			Auto:       c.Auto,
		})
	}
	for _, fk := range m.ForeignKeys() {
		v.ForeignKeys = append(v.ForeignKeys, fk.String())
	}
	return v
}

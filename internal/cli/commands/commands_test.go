package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprecord/internal/config"
)

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantOut []string
	}{
		{name: "default version", version: "0.1.0", wantOut: []string{"leaprecord v0.1.0", "database/sql"}},
		{name: "dev version", version: "dev", wantOut: []string{"leaprecord vdev"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewVersionCommand(tt.version)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)

			require.NoError(t, cmd.Execute())
			for _, want := range tt.wantOut {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		name  string
		cmd   func() *cobra.Command
		sub   string
		flags []string
	}{
		{name: "migrate", cmd: NewMigrateCommand, flags: []string{"to"}},
		{name: "authors add", cmd: NewAuthorsCommand, sub: "add", flags: []string{"birth-year"}},
		{name: "authors list", cmd: NewAuthorsCommand, sub: "list", flags: []string{"with-books", "prefix", "limit", "offset"}},
		{name: "authors delete", cmd: NewAuthorsCommand, sub: "delete", flags: []string{"cascade"}},
		{name: "books add", cmd: NewBooksCommand, sub: "add", flags: []string{"author", "year", "price", "tag"}},
		{name: "books review", cmd: NewBooksCommand, sub: "review", flags: []string{"rating", "body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd()
			if tt.sub != "" {
				sub, _, err := cmd.Find([]string{tt.sub})
				require.NoError(t, err)
				cmd = sub
			}
			assert.NotEmpty(t, cmd.Short)
			for _, flag := range tt.flags {
				assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestOutput_Render(t *testing.T) {
	v := []map[string]any{{"name": "sea", "books": 2}}
	fill := func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Name", "Books"})
		tw.AppendRow(table.Row{"sea", 2})
	}

	tests := []struct {
		format string
		want   string
	}{
		{format: "json", want: "[\n  {\n    \"books\": 2,\n    \"name\": \"sea\"\n  }\n]\n"},
		{format: "yaml", want: "- books: 2\n  name: sea\n"},
		{format: "table", want: "sea"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			o := NewOutput(&buf, tt.format)
			require.NoError(t, o.Render(v, fill))
			if tt.format == "table" {
				assert.Contains(t, buf.String(), tt.want)
				assert.Contains(t, buf.String(), "BOOKS")
				return
			}
			assert.Equal(t, tt.want, buf.String())
		})
	}

	var buf bytes.Buffer
	NewOutput(&buf, "json").Printf("status\n")
	assert.Empty(t, buf.String())
	NewOutput(&buf, "table").Printf("status\n")
	assert.Equal(t, "status\n", buf.String())
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, config.DefaultOutput, GetConfig(ctx).Output)
	assert.NotNil(t, GetLogger(ctx))

	cfg := &config.Config{Output: "yaml"}
	assert.Same(t, cfg, GetConfig(WithConfig(ctx, cfg)))
}

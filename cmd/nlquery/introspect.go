package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"nlquery-app/pkg/model"
)

const columnsQuery = `
	SELECT c.table_name, t.table_type, c.column_name, c.data_type
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema = $1
	ORDER BY c.table_name, c.ordinal_position`

type columnRow struct {
	Table     string
	TableType string
	Column    string
	DataType  string
}

func newIntrospectCmd() *cobra.Command {
	var (
		dsn     string
		schema  string
		only    []string
		compact bool
	)

	cmd := &cobra.Command{
		Use:   "introspect",
		Short: "Build a data model from a PostgreSQL catalog",
		Long: `Read information_schema for one schema and print the data model JSON that
goes into the db_model setting. Edit the table types afterwards to tell the
model which tables are facts and which are dimensions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("--dsn or %s is required", envDatabaseURL)
			}
			rows, err := loadColumns(cmd.Context(), dsn, schema)
			if err != nil {
				return err
			}
			return writeModel(cmd.OutOrStdout(), buildDataModel(rows, only), compact)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dsn, "dsn", os.Getenv(envDatabaseURL), "PostgreSQL connection string")
	flags.StringVar(&schema, "schema", "public", "Schema to introspect")
	flags.StringSliceVar(&only, "tables", nil, "Only include these tables")
	flags.BoolVar(&compact, "compact", false, "Print single-line JSON, ready to paste into db_model")
	return cmd
}

func loadColumns(ctx context.Context, dsn, schema string) ([]columnRow, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx connect: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pgx ping: %w", err)
	}

	rows, err := pool.Query(ctx, columnsQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var out []columnRow
	for rows.Next() {
		var r columnRow
		if err := rows.Scan(&r.Table, &r.TableType, &r.Column, &r.DataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return out, nil
}

// buildDataModel groups rows by table, keeping the catalog order. When only is
// non-empty, other tables are dropped.
func buildDataModel(rows []columnRow, only []string) model.DataModel {
	keep := make(map[string]bool, len(only))
	for _, t := range only {
		keep[t] = true
	}

	dm := model.DataModel{Tables: []model.Table{}}
	index := make(map[string]int)
	for _, r := range rows {
		if len(keep) > 0 && !keep[r.Table] {
			continue
		}
		i, ok := index[r.Table]
		if !ok {
			i = len(dm.Tables)
			index[r.Table] = i
			dm.Tables = append(dm.Tables, model.Table{Table: r.Table, Type: tableType(r.TableType)})
		}
		dm.Tables[i].Columns = append(dm.Tables[i].Columns, model.Column{Name: r.Column, Type: r.DataType})
	}
	return dm
}

func tableType(catalog string) string {
	switch strings.ToUpper(catalog) {
	case "BASE TABLE":
		return "table"
	case "VIEW":
		return "view"
	case "FOREIGN":
		return "foreign table"
	default:
		return strings.ToLower(catalog)
	}
}

func writeModel(w io.Writer, dm model.DataModel, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(dm)
}

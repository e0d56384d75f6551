/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/catalog"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/database"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/utils"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the catalog description sent to the model",
	Long: `Prints the dataset description, business vocabulary and guardrail instructions used in prompts.
With --introspect, column types and profiles are refreshed from the live database.`,
	Example: `./nl2sql catalog --introspect --tables "credit_train[UF,SEXO,IDADE]"`,
	RunE:    runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	contextFiles, _ := cmd.Flags().GetString("context-files")
	introspect, _ := cmd.Flags().GetBool("introspect")
	tablesFlag, _ := cmd.Flags().GetString("tables")

	cat, err := buildCatalog(contextFiles)
	if err != nil {
		return err
	}

	if introspect {
		table, columns, err := singleTable(tablesFlag, cat.Table)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, err := setupDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		cat, err = cat.Introspect(ctx, columnFilter{DBAdapter: db, columns: columns}, table)
		if err != nil {
			return fmt.Errorf("failed to introspect %s: %w", table, err)
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), cat.Describe())
	return nil
}

// singleTable reads the one table (and optional column subset) named by --tables.
func singleTable(tablesFlag, fallback string) (string, []string, error) {
	tables, err := utils.ParseTablesFlag(tablesFlag)
	if err != nil {
		return "", nil, err
	}
	switch len(tables) {
	case 0:
		return fallback, nil, nil
	case 1:
		for table, columns := range tables {
			return table, columns, nil
		}
	}
	names := make([]string, 0, len(tables))
	for table := range tables {
		names = append(names, table)
	}
	return "", nil, fmt.Errorf("the catalog describes a single table, got %s", strings.Join(names, ", "))
}

// columnFilter restricts introspection to a subset of columns.
type columnFilter struct {
	database.DBAdapter
	columns []string
}

var _ catalog.ColumnSource = columnFilter{}

func (f columnFilter) ListColumns(ctx context.Context, table string) ([]database.ColumnInfo, error) {
	all, err := f.DBAdapter.ListColumns(ctx, table)
	if err != nil || len(f.columns) == 0 {
		return all, err
	}
	keep := make(map[string]bool, len(f.columns))
	for _, c := range f.columns {
		keep[strings.ToUpper(c)] = true
	}
	var out []database.ColumnInfo
	for _, c := range all {
		if keep[strings.ToUpper(c.Name)] {
			out = append(out, c)
		}
	}
	return out, nil
}

func init() {
	catalogCmd.Flags().String("context-files", "", "Comma-separated files appended to the catalog description")
	catalogCmd.Flags().Bool("introspect", false, "Refresh column types and profiles from the database")
	catalogCmd.Flags().String("tables", "", "Table to introspect, optionally with columns: table[colA,colB]")
}

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
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/database"
)

// ColumnSource reads live schema information.
type ColumnSource interface {
	ListColumns(ctx context.Context, tableName string) ([]database.ColumnInfo, error)
	GetColumnMetadata(ctx context.Context, tableName string, columnName string) (*database.ColumnMetadata, error)
}

// Introspect returns a copy of c whose column types come from the live table.
// Every column is annotated with distinct and null counts and sample values.
// Live columns missing from c are appended without a description.
func (c *Catalog) Introspect(ctx context.Context, source ColumnSource, table string) (*Catalog, error) {
	live, err := source.ListColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns for %s: %w", table, err)
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("table %s has no columns or does not exist", table)
	}

	cp := c.clone()
	cp.Table = table
	index := make(map[string]int, len(cp.Columns))
	for i, col := range cp.Columns {
		index[strings.ToUpper(col.Name)] = i
	}

	for _, info := range live {
		key := strings.ToUpper(info.Name)
		i, known := index[key]
		if !known {
			cp.Columns = append(cp.Columns, Column{Name: info.Name})
			i = len(cp.Columns) - 1
			index[key] = i
		}
		cp.Columns[i].Name = info.Name
		cp.Columns[i].Type = strings.ToUpper(info.DataType)
		meta, err := source.GetColumnMetadata(ctx, table, info.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to profile %s.%s: %w", table, info.Name, err)
		}
		cp.Columns[i].Profile = formatProfile(meta)
	}
	return cp, nil
}

func formatProfile(meta *database.ColumnMetadata) string {
	if meta == nil {
		return ""
	}
	var parts []string
	if meta.DistinctCount >= 0 {
		parts = append(parts, fmt.Sprintf("%d distinct", meta.DistinctCount))
	}
	parts = append(parts, fmt.Sprintf("%d null", meta.NullCount))
	if len(meta.ExampleValues) > 0 {
		parts = append(parts, "e.g. "+strings.Join(meta.ExampleValues, ", "))
	}
	return strings.Join(parts, ", ")
}

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
package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatement(t *testing.T) {
	tests := []struct {
		name        string
		sql         string
		kind        StatementKind
		detail      string
		tables      []string
		aggregation bool
		limit       bool
	}{
		{
			name:   "plain select",
			sql:    `SELECT * FROM credit_train`,
			kind:   KindSelect,
			detail: "select",
			tables: []string{"credit_train"},
		},
		{
			name:   "schema qualified with limit",
			sql:    `SELECT * FROM analytics.credit_train LIMIT 5`,
			kind:   KindSelect,
			detail: "select",
			tables: []string{"analytics.credit_train"},
			limit:  true,
		},
		{
			name:        "join with group by",
			sql:         `SELECT a."UF", COUNT(*) FROM credit_train a JOIN regions r ON r.uf = a."UF" GROUP BY a."UF"`,
			kind:        KindSelect,
			detail:      "select",
			tables:      []string{"credit_train", "regions"},
			aggregation: true,
		},
		{
			name:        "aggregate in subquery",
			sql:         `SELECT * FROM (SELECT MAX("IDADE") AS m FROM credit_train) s`,
			kind:        KindSelect,
			detail:      "select",
			tables:      []string{"credit_train"},
			aggregation: true,
		},
		{
			name:   "cte names excluded",
			sql:    `WITH recent AS (SELECT * FROM credit_train) SELECT * FROM recent`,
			kind:   KindWith,
			detail: "with",
			tables: []string{"credit_train"},
		},
		{
			name:   "union",
			sql:    `SELECT 1 UNION ALL SELECT 2`,
			kind:   KindUnion,
			detail: "union",
		},
		{
			name:   "insert",
			sql:    `INSERT INTO credit_train VALUES (1)`,
			kind:   KindOther,
			detail: "insert",
			tables: []string{"credit_train"},
		},
		{
			name:   "window call is row level",
			sql:    `SELECT "ID", count(*) OVER () FROM credit_train`,
			kind:   KindSelect,
			detail: "select",
			tables: []string{"credit_train"},
		},
		{
			name:        "aggregate under window call",
			sql:         `SELECT "UF", sum(count(*)) OVER () FROM credit_train GROUP BY "UF"`,
			kind:        KindSelect,
			detail:      "select",
			tables:      []string{"credit_train"},
			aggregation: true,
		},
		{
			name:   "non-aggregate function",
			sql:    `SELECT lower("UF") FROM credit_train`,
			kind:   KindSelect,
			detail: "select",
			tables: []string{"credit_train"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := ParseStatement(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, Dialect, stmt.Dialect)
			assert.Equal(t, tt.sql, stmt.Raw)
			assert.Equal(t, tt.kind, stmt.Kind)
			assert.Equal(t, tt.detail, stmt.Detail)
			if tt.tables == nil {
				assert.Empty(t, stmt.Tables())
			} else {
				assert.Equal(t, tt.tables, stmt.Tables())
			}
			assert.Equal(t, tt.aggregation, stmt.HasAggregation())
			assert.Equal(t, tt.limit, stmt.HasLimit())
		})
	}
}

func TestParseStatementErrors(t *testing.T) {
	_, err := ParseStatement("")
	assert.EqualError(t, err, "empty statement")

	_, err = ParseStatement("/* only a comment */")
	assert.EqualError(t, err, "no statement found in input")

	_, err = ParseStatement("SELEC * FROM credit_train")
	assert.Error(t, err)
}

func TestStatementKindAllowed(t *testing.T) {
	assert.True(t, KindSelect.Allowed())
	assert.True(t, KindWith.Allowed())
	assert.True(t, KindUnion.Allowed())
	assert.False(t, KindOther.Allowed())
}

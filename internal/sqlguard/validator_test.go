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
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	policy := DefaultPolicy()
	require.NoError(t, policy.Validate())
	return NewValidator(policy)
}

func requireRejected(t *testing.T, v Verdict, kind RejectionKind) *Rejection {
	t.Helper()
	require.False(t, v.Accepted, "statement should have been rejected")
	require.NotNil(t, v.Rejection)
	require.Equal(t, kind, v.Rejection.Kind, "unexpected rejection: %s", v.Rejection.Message)
	require.Empty(t, v.SQL)
	return v.Rejection
}

func TestValidateBlocksDeniedOperations(t *testing.T) {
	validator := newTestValidator(t)

	tests := []struct {
		name    string
		sql     string
		keyword string
	}{
		{"insert", "INSERT INTO credit_train (ID, TARGET) VALUES (1, 0)", "INSERT"},
		{"update", `UPDATE credit_train SET "TARGET" = 1 WHERE "ID" = 1`, "UPDATE"},
		{"delete", `DELETE FROM credit_train WHERE "TARGET" = 1`, "DELETE"},
		{"drop table", "DROP TABLE credit_train", "DROP"},
		{"drop database", "DROP DATABASE credit_analytics", "DROP"},
		{"alter table", "ALTER TABLE credit_train ADD COLUMN new_col VARCHAR(10)", "ALTER"},
		{"create table", "CREATE TABLE malicious (id SERIAL PRIMARY KEY)", "CREATE"},
		{"truncate", "TRUNCATE TABLE credit_train", "TRUNCATE"},
		{"grant", "GRANT ALL PRIVILEGES ON credit_train TO malicious_user", "GRANT"},
		{"revoke", "REVOKE SELECT ON credit_train FROM chatbot_reader", "REVOKE"},
		{"lower case", "drop table credit_train", "DROP"},
		{"data modifying cte", `WITH gone AS (DELETE FROM credit_train RETURNING *) SELECT * FROM gone`, "DELETE"},
		{"row locking", `SELECT * FROM credit_train FOR UPDATE`, "UPDATE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := requireRejected(t, validator.Validate(tt.sql), BlockedOperationError)
			assert.Equal(t, tt.keyword, r.Keyword)
			assert.Contains(t, r.Message, tt.keyword)
		})
	}
}

func TestValidateDenylistWordBoundary(t *testing.T) {
	validator := newTestValidator(t)

	for _, keyword := range DefaultBlockedOperations {
		for _, variant := range []string{strings.ToUpper(keyword), strings.ToLower(keyword), strings.ToUpper(keyword[:1]) + strings.ToLower(keyword[1:])} {
			t.Run("standalone "+variant, func(t *testing.T) {
				sql := fmt.Sprintf(`SELECT "UF" FROM credit_train WHERE "UF" = '%s'`, variant)
				r := requireRejected(t, validator.Validate(sql), BlockedOperationError)
				assert.Equal(t, keyword, r.Keyword)
			})
		}
	}

	substrings := []string{"DROPPED_FLAG", "DELETED_AT", "UPDATED_AT", "INSERTED_BY", "CREATED_AT", "ALTERNATE_UF", "TRUNCATED", "GRANTED", "REVOKED", "dropped_flag"}
	for _, column := range substrings {
		t.Run("substring "+column, func(t *testing.T) {
			sql := fmt.Sprintf(`SELECT "%s" FROM credit_train LIMIT 10`, column)
			v := validator.Validate(sql)
			require.True(t, v.Accepted, "unexpected rejection: %v", v.Err())
			assert.Contains(t, v.SQL, column)
		})
	}
}

func TestValidateInjectionRejected(t *testing.T) {
	validator := newTestValidator(t)

	v := validator.Validate(`SELECT * FROM t WHERE x = 'v'; DROP TABLE t; --`)
	r := requireRejected(t, v, BlockedOperationError)
	assert.Equal(t, "DROP", r.Keyword)
	assert.Contains(t, r.Message, "DROP")
}

func TestValidateAllowsReadOnlyQueries(t *testing.T) {
	validator := newTestValidator(t)

	tests := []struct {
		name     string
		sql      string
		kind     StatementKind
		contains []string
	}{
		{
			name:     "select",
			sql:      "SELECT * FROM credit_train LIMIT 10",
			kind:     KindSelect,
			contains: []string{"SELECT", "credit_train", "LIMIT 10"},
		},
		{
			name:     "aggregation",
			sql:      `SELECT "UF", AVG("TARGET") FROM credit_train GROUP BY "UF" HAVING COUNT(*) >= 20`,
			kind:     KindSelect,
			contains: []string{"avg", "GROUP BY"},
		},
		{
			name: "cte",
			sql: `
			WITH inadimplentes AS (
				SELECT "UF", COUNT(*) as total
				FROM credit_train
				WHERE "TARGET" = 1
				GROUP BY "UF"
			)
			SELECT * FROM inadimplentes`,
			kind:     KindWith,
			contains: []string{"WITH"},
		},
		{
			name: "union",
			sql: `
			SELECT "UF", AVG("TARGET") as taxa FROM credit_train WHERE "SEXO" = 'M' GROUP BY "UF"
			UNION
			SELECT "UF", AVG("TARGET") as taxa FROM credit_train WHERE "SEXO" = 'F' GROUP BY "UF"`,
			kind:     KindUnion,
			contains: []string{"UNION"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validator.Validate(tt.sql)
			require.True(t, v.Accepted, "unexpected rejection: %v", v.Err())
			assert.Nil(t, v.Err())
			assert.Equal(t, tt.kind, v.Kind)
			assert.Equal(t, []string{"credit_train"}, v.Tables)
			for _, want := range tt.contains {
				assert.Contains(t, strings.ToUpper(v.SQL), strings.ToUpper(want))
			}
		})
	}
}

func TestValidateSyntaxErrors(t *testing.T) {
	validator := newTestValidator(t)

	tests := []struct {
		name string
		sql  string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t  "},
		{"missing table", "SELECT FROM WHERE"},
		{"unclosed string", `SELECT * FROM credit_train WHERE "UF" = 'SP`},
		{"comment only", "-- nothing to see"},
		{"garbage", "this is not sql"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := requireRejected(t, validator.Validate(tt.sql), SyntaxError)
			assert.True(t, strings.HasPrefix(r.Message, "SQL syntax error: "), r.Message)
			assert.Empty(t, r.Keyword)
		})
	}
}

func TestValidateStatementKindGate(t *testing.T) {
	validator := newTestValidator(t)

	tests := []struct {
		name   string
		sql    string
		detail string
	}{
		{"copy", "COPY credit_train TO STDOUT", "copy"},
		{"explain", "EXPLAIN SELECT * FROM credit_train", "explain"},
		{"intersect", `SELECT "UF" FROM credit_train INTERSECT SELECT "UF" FROM credit_train`, "intersect"},
		{"except", `SELECT "UF" FROM credit_train EXCEPT SELECT "UF" FROM credit_train`, "except"},
		{"select into", `SELECT * INTO backup_table FROM credit_train`, "select_into"},
		{"values", "VALUES (1), (2)", "values"},
		{"multiple statements", "SELECT 1; SELECT 2", "multiple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := requireRejected(t, validator.Validate(tt.sql), DisallowedStatementTypeError)
			assert.Equal(t, tt.detail, r.Keyword)
			assert.Contains(t, r.Message, strings.ToUpper(tt.detail))
		})
	}
}

func TestValidateDenylistRunsBeforeKindCheck(t *testing.T) {
	validator := newTestValidator(t)

	for _, sql := range []string{"INSERT INTO t VALUES (1)", "UPDATE t SET a = 1", "DELETE FROM t", "DROP TABLE x"} {
		requireRejected(t, validator.Validate(sql), BlockedOperationError)
	}

	// With a narrower denylist the same statements fall through to the kind gate.
	policy := DefaultPolicy()
	policy.BlockedOperations = []string{"DROP"}
	narrow := NewValidator(policy)
	r := requireRejected(t, narrow.Validate("DELETE FROM t"), DisallowedStatementTypeError)
	assert.Equal(t, "delete", r.Keyword)
	requireRejected(t, narrow.Validate("DROP TABLE x"), BlockedOperationError)
}

func TestValidateAppliesDefaultLimit(t *testing.T) {
	policy := DefaultPolicy()
	policy.DefaultLimit = 25
	validator := NewValidator(policy)

	v := validator.Validate(`SELECT "UF", "IDADE" FROM credit_train WHERE "IDADE" >= 60`)
	require.True(t, v.Accepted, "unexpected rejection: %v", v.Err())
	assert.Contains(t, v.SQL, "LIMIT 25")
	assert.True(t, v.HasLimit)
	assert.False(t, v.HasAggregation)

	v = validator.Validate(`SELECT COUNT(*) AS volume FROM credit_train WHERE "IDADE" >= 60`)
	require.True(t, v.Accepted, "unexpected rejection: %v", v.Err())
	assert.NotContains(t, v.SQL, "LIMIT")
	assert.False(t, v.HasLimit)
	assert.True(t, v.HasAggregation)
}

func TestValidateConcurrentUse(t *testing.T) {
	validator := newTestValidator(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.True(t, validator.Validate("SELECT * FROM credit_train").Accepted)
			} else {
				assert.False(t, validator.Validate("DROP TABLE credit_train").Accepted)
			}
		}(i)
	}
	wg.Wait()
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Policy)
		wantErr bool
	}{
		{"defaults", func(p *Policy) {}, false},
		{"zero k", func(p *Policy) { p.KAnonymity = 0 }, true},
		{"zero limit", func(p *Policy) { p.DefaultLimit = 0 }, true},
		{"limit beyond int32", func(p *Policy) {
			p.DefaultLimit = math.MaxInt32 + 1
			p.MaxRowsReturn = math.MaxInt32 + 1
		}, true},
		{"limit at int32 max", func(p *Policy) {
			p.DefaultLimit = math.MaxInt32
			p.MaxRowsReturn = math.MaxInt32
		}, false},
		{"max rows below limit", func(p *Policy) { p.MaxRowsReturn = 10 }, true},
		{"no timeout", func(p *Policy) { p.QueryTimeout = 0 }, true},
		{"no attempts", func(p *Policy) { p.MaxAttempts = 0 }, true},
		{"empty denylist", func(p *Policy) { p.BlockedOperations = nil }, true},
		{"keyword with space", func(p *Policy) { p.BlockedOperations = []string{"DROP TABLE"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

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
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
)

// Rewriter adds the default row cap to statements that could return an
// unbounded result. It only bounds the worst case; selectivity is not analyzed.
type Rewriter struct {
	limit int
}

// NewRewriter returns a rewriter using the policy's default limit.
func NewRewriter(policy Policy) *Rewriter {
	return &Rewriter{limit: policy.DefaultLimit}
}

// Apply returns sql with the default limit appended when stmt has neither an
// explicit limit nor an aggregation signal. stmt must be the parse of sql (or
// of text sql was rendered from); when nil, sql is parsed here. Apply is
// idempotent and falls back to sql unchanged on any internal failure.
func (r *Rewriter) Apply(sql string, stmt *Statement) string {
	out, _ := r.apply(sql, stmt)
	return out
}

func (r *Rewriter) apply(sql string, stmt *Statement) (string, bool) {
	if stmt == nil {
		parsed, err := ParseStatement(sql)
		if err != nil {
			return sql, false
		}
		stmt = parsed
	}
	if stmt.HasLimit() || stmt.HasAggregation() {
		return sql, false
	}
	if stmt.rootSelect() == nil {
		return sql, false
	}

	out, err := r.deparseWithLimit(stmt)
	if err != nil {
		return appendLimit(sql, r.limit), true
	}
	return out, true
}

// deparseWithLimit sets the limit on a copy of the tree so stmt stays untouched.
func (r *Rewriter) deparseWithLimit(stmt *Statement) (string, error) {
	tree, ok := proto.Clone(stmt.Tree).(*pg_query.ParseResult)
	if !ok {
		return "", fmt.Errorf("unexpected parse tree type %T", tree)
	}
	root := tree.GetStmts()[0].GetStmt().GetSelectStmt()
	if root == nil {
		return "", fmt.Errorf("root statement is not a SELECT")
	}
	root.LimitCount = intConstNode(r.limit)
	root.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
	return pg_query.Deparse(tree)
}

func intConstNode(n int) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val:      &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(n)}},
				Location: -1,
			},
		},
	}
}

func appendLimit(sql string, limit int) string {
	trimmed := strings.TrimRight(strings.TrimSpace(sql), "; \t\n")
	return fmt.Sprintf("%s LIMIT %d", trimmed, limit)
}

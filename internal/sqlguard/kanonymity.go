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
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// satisfiesKAnonymity reports whether every grouped SELECT in stmt (including
// subqueries and CTEs) carries a HAVING predicate that drops groups smaller
// than k. Ungrouped aggregates are not checked.
func satisfiesKAnonymity(stmt *Statement, k int) bool {
	ok := true
	walk(stmt.Tree.ProtoReflect(), func(m protoreflect.Message) {
		sel, isSelect := m.Interface().(*pg_query.SelectStmt)
		if !isSelect || len(sel.GetGroupClause()) == 0 {
			return
		}
		if !havingEnforcesMinimum(sel.GetHavingClause(), k) {
			ok = false
		}
	})
	return ok
}

// havingEnforcesMinimum accepts COUNT(..) >= c, COUNT(..) > c-1 and their
// mirrored forms with c >= k. Under AND one qualifying operand is enough;
// under OR every branch must qualify.
func havingEnforcesMinimum(n *pg_query.Node, k int) bool {
	if n == nil {
		return false
	}
	if b := n.GetBoolExpr(); b != nil {
		args := b.GetArgs()
		switch b.GetBoolop() {
		case pg_query.BoolExprType_AND_EXPR:
			for _, arg := range args {
				if havingEnforcesMinimum(arg, k) {
					return true
				}
			}
			return false
		case pg_query.BoolExprType_OR_EXPR:
			for _, arg := range args {
				if !havingEnforcesMinimum(arg, k) {
					return false
				}
			}
			return len(args) > 0
		default:
			return false
		}
	}

	expr := n.GetAExpr()
	if expr == nil || expr.GetKind() != pg_query.A_Expr_Kind_AEXPR_OP {
		return false
	}
	op := operatorName(expr)

	if isCountCall(expr.GetLexpr()) {
		if c, ok := intConst(expr.GetRexpr()); ok {
			return boundAtLeast(op, c, k)
		}
	}
	if isCountCall(expr.GetRexpr()) {
		if c, ok := intConst(expr.GetLexpr()); ok {
			return boundAtLeast(mirror(op), c, k)
		}
	}
	return false
}

// boundAtLeast reports whether "COUNT op c" guarantees COUNT >= k.
func boundAtLeast(op string, c int64, k int) bool {
	switch op {
	case ">=":
		return c >= int64(k)
	case ">":
		return c >= int64(k)-1
	default:
		return false
	}
}

func mirror(op string) string {
	switch op {
	case "<=":
		return ">="
	case "<":
		return ">"
	default:
		return op
	}
}

func operatorName(expr *pg_query.A_Expr) string {
	names := expr.GetName()
	if len(names) == 0 {
		return ""
	}
	return names[len(names)-1].GetString_().GetSval()
}

func isCountCall(n *pg_query.Node) bool {
	if n == nil {
		return false
	}
	if tc := n.GetTypeCast(); tc != nil {
		return isCountCall(tc.GetArg())
	}
	fc := n.GetFuncCall()
	return fc != nil && funcName(fc) == "count"
}

func intConst(n *pg_query.Node) (int64, bool) {
	if n == nil {
		return 0, false
	}
	c := n.GetAConst()
	if c == nil || c.GetIsnull() {
		return 0, false
	}
	ival := c.GetIval()
	if ival == nil {
		return 0, false
	}
	return int64(ival.GetIval()), true
}

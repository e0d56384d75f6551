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
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Dialect is the SQL dialect candidate statements are parsed with.
const Dialect = "postgres"

// StatementKind is the coarse category of a parsed root statement.
type StatementKind string

const (
	KindSelect StatementKind = "select"
	KindWith   StatementKind = "with"
	KindUnion  StatementKind = "union"
	KindOther  StatementKind = "other"
)

// Allowed reports whether statements of this kind may reach the store.
func (k StatementKind) Allowed() bool {
	switch k {
	case KindSelect, KindWith, KindUnion:
		return true
	default:
		return false
	}
}

var aggregateFuncs = map[string]bool{
	"count": true,
	"sum":   true,
	"avg":   true,
	"min":   true,
	"max":   true,
}

// Statement is one candidate SQL string and its parse tree. It is produced
// once per attempt and never modified afterwards.
type Statement struct {
	Raw     string
	Dialect string
	Tree    *pg_query.ParseResult
	Kind    StatementKind
	// Detail names the detected root, e.g. "select", "insert", "intersect", "select_into".
	Detail string

	tables         []string
	hasAggregation bool
	hasLimit       bool
}

// ParseStatement parses sql once and derives everything the gates need from
// the resulting tree.
func ParseStatement(sql string) (*Statement, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("empty statement")
	}
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, err
	}
	if len(tree.GetStmts()) == 0 {
		return nil, fmt.Errorf("no statement found in input")
	}

	stmt := &Statement{Raw: sql, Dialect: Dialect, Tree: tree}
	stmt.Kind, stmt.Detail = classify(tree)
	stmt.analyze()
	return stmt, nil
}

// Tables returns the relations referenced by the statement, excluding CTE names.
func (s *Statement) Tables() []string {
	return append([]string(nil), s.tables...)
}

// HasAggregation reports a GROUP BY clause or an aggregate call anywhere in the tree.
func (s *Statement) HasAggregation() bool { return s.hasAggregation }

// HasLimit reports an explicit row limit on the root statement.
func (s *Statement) HasLimit() bool { return s.hasLimit }

// rootSelect returns the single root SELECT, or nil.
func (s *Statement) rootSelect() *pg_query.SelectStmt {
	stmts := s.Tree.GetStmts()
	if len(stmts) != 1 {
		return nil
	}
	return stmts[0].GetStmt().GetSelectStmt()
}

func classify(tree *pg_query.ParseResult) (StatementKind, string) {
	stmts := tree.GetStmts()
	if len(stmts) != 1 {
		return KindOther, "multiple"
	}
	root := stmts[0].GetStmt()
	sel := root.GetSelectStmt()
	if sel == nil {
		return KindOther, nodeLabel(root)
	}
	if sel.GetIntoClause() != nil {
		return KindOther, "select_into"
	}
	switch sel.GetOp() {
	case pg_query.SetOperation_SETOP_UNION:
		return KindUnion, "union"
	case pg_query.SetOperation_SETOP_INTERSECT:
		return KindOther, "intersect"
	case pg_query.SetOperation_SETOP_EXCEPT:
		return KindOther, "except"
	}
	if len(sel.GetValuesLists()) > 0 {
		return KindOther, "values"
	}
	if sel.GetWithClause() != nil {
		return KindWith, "with"
	}
	return KindSelect, "select"
}

// nodeLabel names the populated variant of a Node, e.g. "insert" for insert_stmt.
func nodeLabel(n *pg_query.Node) string {
	if n == nil {
		return "unknown"
	}
	m := n.ProtoReflect()
	oneof := m.Descriptor().Oneofs().ByName("node")
	if oneof == nil {
		return "unknown"
	}
	fd := m.WhichOneof(oneof)
	if fd == nil {
		return "unknown"
	}
	return strings.TrimSuffix(string(fd.Name()), "_stmt")
}

func (s *Statement) analyze() {
	tables := make(map[string]bool)
	ctes := make(map[string]bool)

	walk(s.Tree.ProtoReflect(), func(m protoreflect.Message) {
		switch n := m.Interface().(type) {
		case *pg_query.CommonTableExpr:
			ctes[n.GetCtename()] = true
		case *pg_query.RangeVar:
			name := n.GetRelname()
			if schema := n.GetSchemaname(); schema != "" {
				name = schema + "." + name
			}
			tables[name] = true
		case *pg_query.SelectStmt:
			if len(n.GetGroupClause()) > 0 {
				s.hasAggregation = true
			}
		case *pg_query.FuncCall:
			if isAggregateCall(n) {
				s.hasAggregation = true
			}
		}
	})

	for name := range tables {
		if !ctes[name] {
			s.tables = append(s.tables, name)
		}
	}
	sort.Strings(s.tables)

	if root := s.rootSelect(); root != nil {
		s.hasLimit = root.GetLimitCount() != nil
	}
}

// isAggregateCall ignores window calls such as count(*) OVER (), which keep
// one output row per input row.
func isAggregateCall(fc *pg_query.FuncCall) bool {
	if fc.GetOver() != nil {
		return false
	}
	return aggregateFuncs[funcName(fc)]
}

// funcName returns the unqualified, lower-cased function name.
func funcName(fc *pg_query.FuncCall) string {
	parts := fc.GetFuncname()
	if len(parts) == 0 {
		return ""
	}
	return strings.ToLower(parts[len(parts)-1].GetString_().GetSval())
}

// walk visits m and every message reachable from it, depth first.
func walk(m protoreflect.Message, visit func(protoreflect.Message)) {
	if !m.IsValid() {
		return
	}
	visit(m)
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.Kind() != protoreflect.MessageKind && fd.Kind() != protoreflect.GroupKind {
			return true
		}
		switch {
		case fd.IsMap():
		case fd.IsList():
			list := v.List()
			for i := 0; i < list.Len(); i++ {
				walk(list.Get(i).Message(), visit)
			}
		default:
			walk(v.Message(), visit)
		}
		return true
	})
}

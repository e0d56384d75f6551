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
package result

import (
	"fmt"
	"math"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// ParseDecimal parses the textual form of a NUMERIC/DECIMAL value as sent by
// the store, including "NaN" and "Infinity".
func ParseDecimal(s string) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return n, nil
}

// Normalize returns v with every arbitrary-precision decimal replaced by the
// nearest float64. Rows, row sets, maps and slices are rebuilt with the same
// shape; NULL decimals become nil and all other values pass through unchanged.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Row:
		return normalizeRow(x)
	case *Row:
		if x == nil {
			return x
		}
		r := normalizeRow(*x)
		return &r
	case []Row:
		out := make([]Row, len(x))
		for i, r := range x {
			out[i] = normalizeRow(r)
		}
		return out
	case RowSet:
		return normalizeRowSet(x)
	case *RowSet:
		if x == nil {
			return x
		}
		s := normalizeRowSet(*x)
		return &s
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Normalize(val)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, m := range x {
			out[i] = Normalize(m).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Normalize(val)
		}
		return out
	case pgtype.Numeric:
		return numericToFloat(x)
	case *pgtype.Numeric:
		if x == nil {
			return nil
		}
		return numericToFloat(*x)
	case *big.Rat:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return f
	case *big.Float:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return f
	case big.Float:
		f, _ := x.Float64()
		return f
	default:
		return v
	}
}

func normalizeRow(r Row) Row {
	vals := make([]any, len(r.Values))
	for i, v := range r.Values {
		vals[i] = Normalize(v)
	}
	return Row{Columns: r.Columns, Values: vals}
}

func normalizeRowSet(s RowSet) RowSet {
	rows := make([]Row, len(s.Rows))
	for i, r := range s.Rows {
		rows[i] = normalizeRow(r)
	}
	return RowSet{Columns: s.Columns, Rows: rows, Capped: s.Capped}
}

func numericToFloat(n pgtype.Numeric) any {
	if !n.Valid {
		return nil
	}
	if n.NaN {
		return math.NaN()
	}
	f, err := n.Float64Value()
	if err == nil && f.Valid {
		return f.Float64
	}
	// Very large exponents: fall back to big.Float arithmetic.
	if n.Int == nil {
		return float64(0)
	}
	bf := new(big.Float).SetInt(n.Int)
	scale := new(big.Float).SetFloat64(math.Pow10(int(n.Exp)))
	out, _ := bf.Mul(bf, scale).Float64()
	return out
}

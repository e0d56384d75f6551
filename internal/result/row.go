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
	"bytes"
	"encoding/json"
	"math"
)

// Row is one result row with its column order preserved.
type Row struct {
	Columns []string
	Values  []any
}

// NewRow pairs columns with values. Missing values are filled with nil.
func NewRow(columns []string, values []any) Row {
	vals := make([]any, len(columns))
	copy(vals, values)
	return Row{Columns: columns, Values: vals}
}

// Get returns the value stored under column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as an unordered map. Duplicate column names keep the last value.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// MarshalJSON encodes the row as an object whose keys follow column order.
// Non-finite floats are encoded as null.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var v any
		if i < len(r.Values) {
			v = jsonSafe(r.Values[i])
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func jsonSafe(v any) any {
	switch f := v.(type) {
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil
		}
	}
	return v
}

// RowSet is the bounded result of one executed statement. Capped is set when
// the store had more rows than the executor was allowed to read.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	Capped  bool     `json:"capped"`
}

// Len returns the number of rows read.
func (s *RowSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// Head returns at most n rows.
func (s *RowSet) Head(n int) []Row {
	if s == nil || n <= 0 {
		return []Row{}
	}
	if len(s.Rows) <= n {
		return s.Rows
	}
	return s.Rows[:n]
}

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

// Verdict is the outcome of one validation pass. Exactly one of SQL and
// Rejection is meaningful: SQL when Accepted, Rejection otherwise.
type Verdict struct {
	Accepted       bool
	SQL            string
	Rejection      *Rejection
	Kind           StatementKind
	Tables         []string
	HasAggregation bool
	HasLimit       bool
}

// Err returns the rejection as an error, or nil for an accepted statement.
func (v Verdict) Err() error {
	if v.Accepted || v.Rejection == nil {
		return nil
	}
	return v.Rejection
}

func accepted(stmt *Statement, sql string) Verdict {
	return Verdict{
		Accepted:       true,
		SQL:            sql,
		Kind:           stmt.Kind,
		Tables:         stmt.Tables(),
		HasAggregation: stmt.HasAggregation(),
		HasLimit:       stmt.HasLimit(),
	}
}

func rejected(stmt *Statement, r *Rejection) Verdict {
	v := Verdict{Rejection: r, Kind: KindOther}
	if stmt != nil {
		v.Kind = stmt.Kind
		v.Tables = stmt.Tables()
		v.HasAggregation = stmt.HasAggregation()
		v.HasLimit = stmt.HasLimit()
	}
	return v
}

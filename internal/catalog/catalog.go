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

// Package catalog describes the queryable dataset to the SQL generator:
// columns, business vocabulary, quoting rules, the k-anonymity instruction
// and few-shot examples.
package catalog

import (
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
)

// Column describes one column of the dataset.
type Column struct {
	Name        string
	Type        string
	Description string
	// Profile is filled by Introspect, e.g. "27 distinct, 0 null, e.g. SP, RJ, MG".
	Profile string
}

// Metric is a named business measure and the SQL expression computing it.
type Metric struct {
	Name        string
	SQL         string
	Description string
	Synonyms    []string
}

// Dimension is a business term mapped onto a column.
type Dimension struct {
	Name          string
	Column        string
	Description   string
	Synonyms      []string
	Normalization string
	ValidValues   []string
}

// Example is a question paired with the SQL that answers it.
type Example struct {
	Question    string
	SQL         string
	Explanation string
}

// Catalog is the description handed to the generator. Values are treated as
// immutable once built; WithContext and Introspect return modified copies.
type Catalog struct {
	Table       string
	Description string
	Period      string
	Columns     []Column
	Metrics     []Metric
	Dimensions  []Dimension
	KAnonymity  int
	Context     string

	examples []Example
}

// Describe renders the catalog as prompt text.
func (c *Catalog) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", c.Table)
	if c.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Description)
	}
	if c.Period != "" {
		fmt.Fprintf(&b, "Period: %s\n", c.Period)
	}

	b.WriteString("\nColumns:\n")
	for _, col := range c.Columns {
		fmt.Fprintf(&b, "  - %q: %s - %s", col.Name, col.Type, col.Description)
		if col.Profile != "" {
			fmt.Fprintf(&b, " (%s)", col.Profile)
		}
		b.WriteByte('\n')
	}

	if len(c.Metrics) > 0 {
		b.WriteString("\nMetrics:\n")
		for _, m := range c.Metrics {
			fmt.Fprintf(&b, "  - %s = %s: %s (also: %s)\n", m.Name, m.SQL, m.Description, strings.Join(m.Synonyms, ", "))
		}
	}

	if len(c.Dimensions) > 0 {
		b.WriteString("\nDimensions:\n")
		for _, d := range c.Dimensions {
			fmt.Fprintf(&b, "  - %s -> %q: %s", d.Name, d.Column, d.Description)
			if d.Normalization != "" {
				fmt.Fprintf(&b, "; normalize with %s", d.Normalization)
			}
			if len(d.ValidValues) > 0 {
				fmt.Fprintf(&b, "; valid values: %s", strings.Join(d.ValidValues, ", "))
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nRules:\n")
	b.WriteString("  - Always wrap column names in double quotes (e.g. \"UF\", \"TARGET\").\n")
	fmt.Fprintf(&b, "  - Apply k-anonymity: every aggregation must include HAVING COUNT(*) >= %d.\n", c.KAnonymity)
	b.WriteString("  - Only read-only SELECT queries are allowed.\n")

	if ctx := strings.TrimSpace(c.Context); ctx != "" {
		b.WriteString("\nAdditional context:\n")
		b.WriteString(ctx)
		b.WriteByte('\n')
	}
	return b.String()
}

// Examples returns the first n few-shot examples, or all of them when n <= 0.
func (c *Catalog) Examples(n int) []Example {
	if n <= 0 || n > len(c.examples) {
		n = len(c.examples)
	}
	out := make([]Example, n)
	copy(out, c.examples[:n])
	return out
}

// WithContext returns a copy of c carrying extra free-form documentation.
func (c *Catalog) WithContext(extra string) *Catalog {
	cp := c.clone()
	cp.Context = strings.TrimSpace(strings.TrimSpace(c.Context) + "\n" + extra)
	return cp
}

// FindMetric returns the first metric whose synonym appears in text.
func (c *Catalog) FindMetric(text string) (Metric, bool) {
	lower := strings.ToLower(text)
	for _, m := range c.Metrics {
		for _, s := range m.Synonyms {
			if strings.Contains(lower, strings.ToLower(s)) {
				return m, true
			}
		}
	}
	return Metric{}, false
}

// FindDimension returns the first dimension whose synonym appears in text.
func (c *Catalog) FindDimension(text string) (Dimension, bool) {
	lower := strings.ToLower(text)
	for _, d := range c.Dimensions {
		for _, s := range d.Synonyms {
			if strings.Contains(lower, strings.ToLower(s)) {
				return d, true
			}
		}
	}
	return Dimension{}, false
}

func (c *Catalog) clone() *Catalog {
	cp := *c
	cp.Columns = append([]Column(nil), c.Columns...)
	cp.Metrics = append([]Metric(nil), c.Metrics...)
	cp.Dimensions = append([]Dimension(nil), c.Dimensions...)
	cp.examples = append([]Example(nil), c.examples...)
	return &cp
}

// Default returns the credit_train catalog with the k-anonymity threshold of policy.
func Default(policy sqlguard.Policy) *Catalog {
	k := policy.KAnonymity
	having := fmt.Sprintf("HAVING COUNT(*) >= %d", k)
	return &Catalog{
		Table:       "credit_train",
		Description: "Credit granting training base with about 170k records",
		Period:      "2017-01 to 2017-08",
		KAnonymity:  k,
		Columns: []Column{
			{Name: "REF_DATE", Type: "TIMESTAMPTZ", Description: "Reference date of the record"},
			{Name: "TARGET", Type: "SMALLINT", Description: "Binary target (0 = good payer, 1 = defaulter)"},
			{Name: "SEXO", Type: "VARCHAR(1)", Description: "Sex (M/F)"},
			{Name: "IDADE", Type: "NUMERIC", Description: "Age in years"},
			{Name: "OBITO", Type: "BOOLEAN", Description: "Death indicator (TRUE = yes, FALSE/NULL = no)"},
			{Name: "UF", Type: "VARCHAR(2)", Description: "Brazilian federative unit (state)"},
			{Name: "CLASSE_SOCIAL", Type: "VARCHAR(20)", Description: "Estimated social class (alta, media, baixa)"},
		},
		Metrics: []Metric{
			{Name: "default_rate", SQL: `AVG("TARGET")`, Description: "Share of defaulters (TARGET = 1)",
				Synonyms: []string{"inadimplência", "inadimplencia", "default rate", "taxa de default", "mau pagador"}},
			{Name: "volume", SQL: "COUNT(*)", Description: "Number of records",
				Synonyms: []string{"quantidade", "quantas", "total", "contagem", "how many", "count"}},
			{Name: "average_age", SQL: `AVG("IDADE")`, Description: "Average age in years",
				Synonyms: []string{"idade média", "idade media", "média de idade", "average age"}},
			{Name: "min_age", SQL: `MIN("IDADE")`, Description: "Minimum age",
				Synonyms: []string{"menor idade", "idade mínima", "youngest"}},
			{Name: "max_age", SQL: `MAX("IDADE")`, Description: "Maximum age",
				Synonyms: []string{"maior idade", "idade máxima", "oldest"}},
		},
		Dimensions: []Dimension{
			{Name: "state", Column: "UF", Description: "Brazilian state",
				Synonyms: []string{"estado", "uf", "unidade federativa", "state"},
				Normalization: `UPPER(TRIM("UF"))`, ValidValues: validUFs},
			{Name: "sex", Column: "SEXO", Description: "Sex of the individual",
				Synonyms: []string{"sexo", "gênero", "genero", "homens", "mulheres", "gender"},
				Normalization: `UPPER(TRIM("SEXO"))`, ValidValues: []string{"M", "F"}},
			{Name: "social_class", Column: "CLASSE_SOCIAL", Description: "Estimated social class",
				Synonyms: []string{"classe social", "classe", "social class"},
				Normalization: `LOWER(TRIM("CLASSE_SOCIAL"))`},
			{Name: "age", Column: "IDADE", Description: "Age in years",
				Synonyms: []string{"idade", "faixa etária", "faixa etaria", "age"}},
			{Name: "death", Column: "OBITO", Description: "Death indicator",
				Synonyms: []string{"óbito", "obito", "falecido", "death"}},
			{Name: "reference_date", Column: "REF_DATE", Description: "Reference date",
				Synonyms: []string{"mês", "mes", "mensal", "ano", "período", "periodo", "month", "year"}},
		},
		examples: []Example{
			{
				Question:    "Qual a taxa de inadimplência média por UF?",
				SQL:         `SELECT "UF", AVG("TARGET") AS taxa_inadimplencia FROM credit_train GROUP BY "UF" ` + having + ` ORDER BY taxa_inadimplencia DESC`,
				Explanation: "Groups by state, averages TARGET and applies k-anonymity",
			},
			{
				Question:    "Quantas pessoas têm mais de 60 anos?",
				SQL:         `SELECT COUNT(*) AS volume FROM credit_train WHERE "IDADE" >= 60`,
				Explanation: "Filters by age and counts records",
			},
			{
				Question:    "Taxa de inadimplência por sexo e classe social",
				SQL:         `SELECT "SEXO", LOWER(TRIM("CLASSE_SOCIAL")) AS classe, AVG("TARGET") AS taxa FROM credit_train GROUP BY "SEXO", "CLASSE_SOCIAL" ` + having,
				Explanation: "Groups by two dimensions and normalizes social class",
			},
			{
				Question:    "Evolução mensal da inadimplência",
				SQL:         `SELECT EXTRACT(YEAR FROM "REF_DATE") AS ano, EXTRACT(MONTH FROM "REF_DATE") AS mes, AVG("TARGET") AS taxa FROM credit_train GROUP BY 1, 2 ` + having + ` ORDER BY 1, 2`,
				Explanation: "Groups by year and month with EXTRACT",
			},
			{
				Question:    "Compare inadimplência entre homens e mulheres",
				SQL:         `SELECT "SEXO", COUNT(*) AS n, AVG("TARGET") AS taxa_inadimplencia FROM credit_train WHERE "SEXO" IS NOT NULL GROUP BY "SEXO" ` + having,
				Explanation: "Compares rates between sexes and drops nulls",
			},
		},
	}
}

var validUFs = []string{
	"AC", "AL", "AP", "AM", "BA", "CE", "DF", "ES", "GO",
	"MA", "MT", "MS", "MG", "PA", "PB", "PR", "PE", "PI",
	"RJ", "RN", "RS", "RO", "RR", "SC", "SP", "SE", "TO",
}

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
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

type denyRule struct {
	keyword string
	pattern *regexp.Regexp
}

// Validator decides whether a candidate statement may reach the store and
// produces its canonical, guardrail-augmented form. It is safe for
// concurrent use.
type Validator struct {
	policy   Policy
	denylist []denyRule
	rewriter *Rewriter
}

// NewValidator compiles the denylist of policy.
func NewValidator(policy Policy) *Validator {
	rules := make([]denyRule, 0, len(policy.BlockedOperations))
	for _, op := range policy.BlockedOperations {
		keyword := strings.ToUpper(strings.TrimSpace(op))
		if keyword == "" {
			continue
		}
		rules = append(rules, denyRule{
			keyword: keyword,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`),
		})
	}
	policy.BlockedOperations = append([]string(nil), policy.BlockedOperations...)
	return &Validator{
		policy:   policy,
		denylist: rules,
		rewriter: NewRewriter(policy),
	}
}

// Policy returns the guardrails this validator enforces.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate runs the gates in order and stops at the first failure:
// syntax, denylist, statement kind and, when enabled, k-anonymity.
// Accepted statements are then formatted and rewritten.
func (v *Validator) Validate(sql string) Verdict {
	stmt, err := ParseStatement(sql)
	if err != nil {
		return rejected(nil, syntaxRejection(err))
	}

	if keyword, found := v.blockedKeyword(stmt.Raw); found {
		return rejected(stmt, blockedRejection(keyword))
	}

	if !stmt.Kind.Allowed() {
		return rejected(stmt, statementTypeRejection(stmt.Detail))
	}

	if v.policy.EnforceKAnonymity && !satisfiesKAnonymity(stmt, v.policy.KAnonymity) {
		return rejected(stmt, kAnonymityRejection(v.policy.KAnonymity))
	}

	canonical := format(stmt)
	final, limited := v.rewriter.apply(canonical, stmt)

	verdict := accepted(stmt, final)
	verdict.HasLimit = stmt.HasLimit() || limited
	return verdict
}

// blockedKeyword returns the first denied keyword that appears as a whole
// word anywhere in sql.
func (v *Validator) blockedKeyword(sql string) (string, bool) {
	for _, rule := range v.denylist {
		if rule.pattern.MatchString(sql) {
			return rule.keyword, true
		}
	}
	return "", false
}

// format renders the tree in canonical form, falling back to the original
// text when the deparser cannot handle it.
func format(stmt *Statement) string {
	out, err := pg_query.Deparse(stmt.Tree)
	if err != nil || strings.TrimSpace(out) == "" {
		return stmt.Raw
	}
	return out
}

func upper(s string) string {
	return strings.ToUpper(s)
}

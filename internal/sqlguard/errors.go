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

import "fmt"

// RejectionKind identifies which gate rejected a statement.
type RejectionKind int

const (
	SyntaxError RejectionKind = iota + 1
	BlockedOperationError
	DisallowedStatementTypeError
	KAnonymityError
)

func (k RejectionKind) String() string {
	switch k {
	case SyntaxError:
		return "SyntaxError"
	case BlockedOperationError:
		return "BlockedOperationError"
	case DisallowedStatementTypeError:
		return "DisallowedStatementTypeError"
	case KAnonymityError:
		return "KAnonymityError"
	default:
		return fmt.Sprintf("RejectionKind(%d)", int(k))
	}
}

// Rejection explains why a statement was refused. Message is fed back to the
// SQL generator verbatim, so it always carries the offending keyword or the
// parser message.
type Rejection struct {
	Kind    RejectionKind
	Keyword string // matched keyword, detected statement kind, or empty for syntax errors
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func syntaxRejection(err error) *Rejection {
	return &Rejection{
		Kind:    SyntaxError,
		Message: fmt.Sprintf("SQL syntax error: %v", err),
	}
}

func blockedRejection(keyword string) *Rejection {
	return &Rejection{
		Kind:    BlockedOperationError,
		Keyword: keyword,
		Message: fmt.Sprintf("blocked operation detected: %s. Only read-only SELECT queries are allowed", keyword),
	}
}

func statementTypeRejection(detail string) *Rejection {
	return &Rejection{
		Kind:    DisallowedStatementTypeError,
		Keyword: detail,
		Message: fmt.Sprintf("only SELECT queries are allowed (SELECT, WITH, UNION); detected statement type: %s", upper(detail)),
	}
}

func kAnonymityRejection(k int) *Rejection {
	return &Rejection{
		Kind:    KAnonymityError,
		Keyword: "HAVING",
		Message: fmt.Sprintf("grouped query must filter small groups with HAVING COUNT(*) >= %d", k),
	}
}

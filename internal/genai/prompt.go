package genai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// sqlFlavor returns the SQL flavour named in prompts for a database dialect
// and the date grouping rule that flavour supports.
func sqlFlavor(dialect string) (name, dateRule string) {
	switch dialect {
	case "mysql", "cloudsqlmysql":
		return "MySQL", "Use YEAR() and MONTH() or DATE_FORMAT for monthly or yearly grouping. DATE_TRUNC does not exist."
	default:
		return "PostgreSQL", "Use DATE_TRUNC for monthly or yearly grouping."
	}
}

// BuildGeneratePrompt renders the first-attempt prompt.
func BuildGeneratePrompt(req GenerateRequest) string {
	flavor, dateRule := sqlFlavor(req.Dialect)

	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s expert. Convert the question into one read-only SQL query.\n\n", flavor)
	b.WriteString("********** Catalog **********\n")
	b.WriteString(strings.TrimSpace(req.Catalog))
	b.WriteString("\n********** End Catalog **********\n")

	if len(req.Examples) > 0 {
		b.WriteString("\n**Examples:**\n")
		for _, ex := range req.Examples {
			fmt.Fprintf(&b, "Question: %s\nSQL: %s\n", ex.Question, ex.SQL)
			if ex.Explanation != "" {
				fmt.Fprintf(&b, "Why: %s\n", ex.Explanation)
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("\n**Rules:**\n")
	b.WriteString("1. Wrap every column name in double quotes.\n")
	b.WriteString("2. Every aggregation must keep the HAVING COUNT(*) threshold stated in the catalog.\n")
	b.WriteString("3. Only SELECT statements. Never modify data or schema.\n")
	fmt.Fprintf(&b, "4. %s\n", dateRule)
	b.WriteString("5. Use UPPER, LOWER and TRIM to normalize text comparisons.\n")
	b.WriteString("6. Output ONLY the SQL, inside <sql></sql> tags, with no explanation.\n")
	fmt.Fprintf(&b, "\nQuestion: %s\n", req.Question)
	return b.String()
}

// BuildCorrectionPrompt renders the prompt asking the model to repair a failed query.
func BuildCorrectionPrompt(req CorrectionRequest) string {
	flavor, dateRule := sqlFlavor(req.Dialect)

	var b strings.Builder
	fmt.Fprintf(&b, "The %s query below failed. Fix it so it answers the question.\n\n", flavor)
	b.WriteString("********** Catalog **********\n")
	b.WriteString(strings.TrimSpace(req.Catalog))
	b.WriteString("\n********** End Catalog **********\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", req.Question)
	fmt.Fprintf(&b, "Failed SQL:\n%s\n\n", strings.TrimSpace(req.FailedSQL))
	fmt.Fprintf(&b, "Error:\n%s\n", strings.TrimSpace(req.ErrorText))
	b.WriteString("\n**Instructions:**\n")
	b.WriteString("1. Keep column names in double quotes.\n")
	b.WriteString("2. Keep the HAVING COUNT(*) threshold on every aggregation.\n")
	b.WriteString("3. Return a single SELECT statement. Blocked operations stay blocked.\n")
	fmt.Fprintf(&b, "4. %s\n", dateRule)
	b.WriteString("5. Output ONLY the corrected SQL, inside <sql></sql> tags.\n")
	return b.String()
}

// BuildAnswerPrompt renders the prompt asking the model to answer the question
// from the rows of the executed query. Rows are written one JSON object per line.
func BuildAnswerPrompt(req AnswerRequest) string {
	var b strings.Builder
	b.WriteString("You are a data analyst specialized in credit. Answer the user's question from the query results.\n\n")
	fmt.Fprintf(&b, "Question:\n%s\n\n", strings.TrimSpace(req.Question))
	fmt.Fprintf(&b, "Rows (first %d of %d):\n", len(req.Rows), req.RowCount)
	for _, row := range req.Rows {
		line, err := json.Marshal(row)
		if err != nil {
			line = []byte(fmt.Sprintf("%v", row.Values))
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nExecuted SQL:\n%s\n", strings.TrimSpace(req.SQL))
	b.WriteString(`
**Instructions:**
1. Answer clearly and concisely in Brazilian Portuguese, using only the rows above.
2. Percentages: decimal comma and 2 places (e.g. 24,50%).
3. Ages: decimal comma and 1 place (e.g. 35,4 anos).
4. Counts: dot as thousands separator (e.g. 1.234).
5. Mention relevant insights when there are any.
`)
	return b.String()
}

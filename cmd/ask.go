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
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/gateway"
)

var askCmd = &cobra.Command{
	Use:     "ask <question>",
	Short:   "Answer a question with a guarded SQL query",
	Long:    `Generates SQL for the question, validates and executes it, asking the model to correct failures up to MAX_RETRY_ATTEMPTS times.`,
	Example: `./nl2sql ask "Qual a taxa de inadimplência por UF?" --database credit_analytics --username chatbot_reader`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	contextFiles, _ := cmd.Flags().GetString("context-files")
	examples, _ := cmd.Flags().GetInt("examples")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	svc, _, cleanup, err := setupService(ctx, contextFiles, examples)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Ask(ctx, question)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return renderResult(cmd.OutOrStdout(), res)
}

func renderResult(w io.Writer, res *gateway.QueryResult) error {
	fmt.Fprintln(w, pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("SQL")).
		WithPadding(1).
		Sprint(res.SQL))

	if len(res.Data) == 0 {
		fmt.Fprintln(w, "No rows.")
		return nil
	}

	data := pterm.TableData{res.Data[0].Columns}
	for _, row := range res.Data {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			cells[i] = formatCell(v)
		}
		data = append(data, cells)
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render result table: %w", err)
	}
	fmt.Fprintln(w, table)

	if res.Answer != "" {
		fmt.Fprintln(w, pterm.DefaultParagraph.Sprint(res.Answer))
		fmt.Fprintln(w)
	}

	summary := fmt.Sprintf("%d row(s), %d attempt(s), request %s", res.RowCount, res.Attempts, res.RequestID)
	if res.Truncated {
		summary += fmt.Sprintf(", showing first %d", len(res.Data))
	}
	fmt.Fprintln(w, summary)
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func init() {
	askCmd.Flags().String("context-files", "", "Comma-separated files appended to the catalog description")
	askCmd.Flags().Int("examples", 0, "Number of few-shot examples sent with the question (0 for all)")
	askCmd.Flags().Bool("json", false, "Print the result as JSON")
}

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
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/utils"
)

var validateCmd = &cobra.Command{
	Use:   "validate [sql]",
	Short: "Check statements against the guardrail policy",
	Long: `Runs the guardrail validator over a statement or over every statement in a file
and prints the rewritten SQL or the rejection. Neither the database nor the model is contacted.`,
	Example: `./nl2sql validate 'SELECT "UF" FROM credit_train'
./nl2sql validate --file ./queries.sql`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")

	var statements []string
	switch {
	case file != "" && len(args) > 0:
		return fmt.Errorf("pass either a statement or --file, not both")
	case file != "":
		var err error
		statements, err = utils.ReadStatementsFromFile(file)
		if err != nil {
			return err
		}
	case len(args) == 1:
		statements = []string{args[0]}
	default:
		return fmt.Errorf("no statement given")
	}

	validator := sqlguard.NewValidator(appCfg.Guardrails)
	rejected := 0
	for i, stmt := range statements {
		verdict := validator.Validate(stmt)
		if len(statements) > 1 {
			pterm.DefaultSection.Printf("Statement %d", i+1)
		}
		if verdict.Accepted {
			pterm.Success.Println("accepted")
			fmt.Fprintln(cmd.OutOrStdout(), verdict.SQL)
			continue
		}
		rejected++
		pterm.Error.Printf("%s: %s\n", verdict.Rejection.Kind, verdict.Rejection.Message)
		if verdict.Tables != nil {
			pterm.Info.Printf("tables: %s\n", strings.Join(verdict.Tables, ", "))
		}
	}

	if rejected > 0 {
		return fmt.Errorf("%d of %d statement(s) rejected", rejected, len(statements))
	}
	return nil
}

func init() {
	validateCmd.Flags().StringP("file", "f", "", "File with statements separated by ';' and a newline")
}

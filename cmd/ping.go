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

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the database connection and, optionally, the Gemini API key",
	RunE:  runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := setupDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	pterm.Success.Printf("connected to %s (%s)\n", appCfg.Database.DBName, version)

	if checkKey, _ := cmd.Flags().GetBool("check-gemini"); checkKey {
		gen, err := setupGenerator(ctx)
		if err != nil {
			return err
		}
		defer gen.Close()
		if err := gen.IsAPIKeyValid(ctx); err != nil {
			return err
		}
		pterm.Success.Println("Gemini API key is valid")
	}
	return nil
}

func init() {
	pingCmd.Flags().Bool("check-gemini", false, "Also verify the Gemini API key")
}

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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/config"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gateway over HTTP",
	Long:  `Exposes POST /v1/query, POST /v1/validate and GET /healthz until interrupted.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	contextFiles, _ := cmd.Flags().GetString("context-files")
	examples, _ := cmd.Flags().GetInt("examples")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, db, cleanup, err := setupService(ctx, contextFiles, examples)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &server.Server{
		Asker:     svc,
		Validator: svc.Validator(),
		DB:        db,
		Logger:    logger,
	}
	return srv.ListenAndServe(ctx, appCfg.Server.Addr)
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("context-files", "", "Comma-separated files appended to the catalog description")
	serveCmd.Flags().Int("examples", 0, "Number of few-shot examples sent with each question (0 for all)")
	bindFlag(config.KeyServerAddr, serveCmd.Flags().Lookup("addr"))
}

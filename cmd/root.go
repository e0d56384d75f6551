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
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/catalog"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/config"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/database"
	_ "github.com/GoogleCloudPlatform/nl2sql-gateway/internal/database/mysql"
	_ "github.com/GoogleCloudPlatform/nl2sql-gateway/internal/database/postgres"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/gateway"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/genai"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/logging"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/utils"
)

var (
	v      = viper.New()
	appCfg config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "nl2sql",
	Short: "Answer questions about a dataset with guarded, read-only SQL",
	Long: `nl2sql turns natural-language questions into SQL with Gemini, validates every
statement against a read-only guardrail policy, executes it with a statement
timeout and asks the model to correct statements that fail.`,
	SilenceUsage:       true,
	PersistentPreRunE:  initConfigAndLogging,
	PersistentPostRunE: syncLogger,
}

// initConfigAndLogging loads configuration from flags, the environment and
// optional files, then installs the process logger.
func initConfigAndLogging(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := cfg.Guardrails.Validate(); err != nil {
		return fmt.Errorf("invalid guardrails: %w", err)
	}

	l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	logger = l
	appCfg = cfg
	return nil
}

func syncLogger(cmd *cobra.Command, args []string) error {
	_ = logger.Sync()
	return nil
}

func validateDialect(dialect string) error {
	supported := database.SupportedDialects()
	for _, d := range supported {
		if d == dialect {
			return nil
		}
	}
	return fmt.Errorf("unsupported dialect: %s (only %s are supported)", dialect, strings.Join(supported, ", "))
}

func setupDatabase(ctx context.Context) (*database.DB, error) {
	dbCfg := appCfg.Database
	if err := validateDialect(dbCfg.Dialect); err != nil {
		return nil, err
	}
	if err := dbCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	db, err := database.New(ctx, dbCfg, database.OptionsFromPolicy(appCfg.Guardrails))
	if err != nil {
		logger.Error("failed to connect to database", logging.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func setupGenerator(ctx context.Context) (genai.SQLGenerator, error) {
	return genai.NewClient(ctx, genai.Config{
		APIKey: appCfg.GenAI.APIKey,
		Model:  appCfg.GenAI.Model,
	})
}

// buildCatalog returns the default catalog extended with the given context files.
func buildCatalog(contextFiles string) (*catalog.Catalog, error) {
	cat := catalog.Default(appCfg.Guardrails)
	extra, err := utils.ReadContextFiles(contextFiles)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(extra) != "" {
		cat = cat.WithContext(extra)
	}
	return cat, nil
}

// setupService wires the validator, database and generator into a gateway.
// The returned cleanup closes both connections.
func setupService(ctx context.Context, contextFiles string, examples int) (*gateway.Service, *database.DB, func(), error) {
	if err := appCfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	cat, err := buildCatalog(contextFiles)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := setupDatabase(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	gen, err := setupGenerator(ctx)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	svc := gateway.NewService(sqlguard.NewValidator(appCfg.Guardrails), db, gen, cat, gateway.Config{
		DisplayRowCap:  appCfg.DisplayRowCap,
		RequestTimeout: appCfg.RequestTimeout,
		Examples:       examples,
		Retry:          gateway.DefaultRetryOptions,
		Dialect:        appCfg.Database.Dialect,
		SkipAnswer:     !appCfg.GenAI.Summarize,
	}, logger)

	cleanup := func() {
		if err := gen.Close(); err != nil {
			logger.Warn("failed to close Gemini client", logging.Error(err))
		}
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", logging.Error(err))
		}
	}
	return svc, db, cleanup, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", flag.Name, err))
	}
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.String("config", "", "Optional config file (yaml, json or toml)")

	// Database connection flags
	flags.String("dialect", "postgres", fmt.Sprintf("Database dialect (%s)", strings.Join([]string{"postgres", "mysql", "cloudsqlpostgres", "cloudsqlmysql"}, ", ")))
	flags.String("host", "localhost", "Database host")
	flags.Int("port", 5432, "Database port")
	flags.String("username", "", "Database username (read-only role recommended)")
	flags.String("password", "", "Database password (prefer the DB_PASSWORD environment variable)")
	flags.String("database", "", "Database name")
	flags.String("cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects)")
	flags.Bool("cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	// Gemini flags
	flags.String("gemini-api-key", "", "Gemini API key (can also be set via GEMINI_API_KEY environment variable)")
	flags.String("model", "", "Gemini model used for generation and correction")
	flags.Bool("summarize", true, "Ask the model for a natural-language answer after each query")

	// Logging
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console or json)")

	for key, name := range map[string]string{
		config.KeyConfigFile:        "config",
		config.KeyDBDialect:         "dialect",
		config.KeyDBHost:            "host",
		config.KeyDBPort:            "port",
		config.KeyDBUser:            "username",
		config.KeyDBPassword:        "password",
		config.KeyDBName:            "database",
		config.KeyCloudSQLInstance:  "cloudsql-instance-connection-name",
		config.KeyCloudSQLPrivateIP: "cloudsql-use-private-ip",
		config.KeyGeminiAPIKey:      "gemini-api-key",
		config.KeyLLMModel:          "model",
		config.KeySummarizeAnswers:  "summarize",
		config.KeyLogLevel:          "log-level",
		config.KeyLogFormat:         "log-format",
	} {
		bindFlag(key, flags.Lookup(name))
	}

	// Add subcommands
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(serveCmd)
}

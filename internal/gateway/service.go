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
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/catalog"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/genai"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/logging"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/result"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
)

const defaultDisplayRowCap = 100

// noResultsAnswer is returned without calling the model when a query matches no rows.
const noResultsAnswer = "Não encontrei resultados para essa consulta. Tente reformular a pergunta."

// Executor runs an accepted statement against the data store.
type Executor interface {
	Query(ctx context.Context, sql string) (*result.RowSet, error)
}

// Config holds per-service settings that are not part of the guardrail policy.
type Config struct {
	DisplayRowCap  int           // Rows returned to the caller; more rows set Truncated
	RequestTimeout time.Duration // Overall deadline for Ask, 0 for none
	Examples       int           // Few-shot examples sent with the question, 0 for all
	Retry          RetryOptions  // Backoff for transient generator failures
	Dialect        string        // Database dialect the generated SQL must run on
	SkipAnswer     bool          // Leave QueryResult.Answer empty instead of asking the model
}

type Service struct {
	validator *sqlguard.Validator
	executor  Executor
	generator genai.SQLGenerator
	catalog   *catalog.Catalog
	cfg       Config
	logger    *zap.Logger
}

func NewService(validator *sqlguard.Validator, executor Executor, generator genai.SQLGenerator, cat *catalog.Catalog, cfg Config, logger *zap.Logger) *Service {
	if cfg.DisplayRowCap <= 0 {
		cfg.DisplayRowCap = defaultDisplayRowCap
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryOptions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		validator: validator,
		executor:  executor,
		generator: generator,
		catalog:   cat,
		cfg:       cfg,
		logger:    logger,
	}
}

// Validator returns the validator shared by every request.
func (s *Service) Validator() *sqlguard.Validator {
	return s.validator
}

// Ask answers a natural-language question: generate, validate, execute with
// correction, normalize.
func (s *Service) Ask(ctx context.Context, question string) (*QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &ErrInvalidInput{Msg: "question is empty"}
	}

	requestID, ok := RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = WithRequestID(ctx, requestID)
	}
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	logger := s.requestLogger(ctx)
	startTime := time.Now()

	initial, err := s.generate(ctx, question)
	if err != nil {
		return nil, err
	}

	outcome, err := s.ExecuteWithRetry(ctx, initial, question)
	if err != nil {
		return nil, err
	}

	rows := normalizedRows(outcome.Rows)
	res := &QueryResult{
		SQL:       outcome.SQL,
		Data:      rows.Head(s.cfg.DisplayRowCap),
		RowCount:  rows.Len(),
		Truncated: rows.Len() > s.cfg.DisplayRowCap,
		Attempts:  len(outcome.Attempts),
		RequestID: requestID,
	}
	if res.Data == nil {
		res.Data = []result.Row{}
	}
	if !s.cfg.SkipAnswer {
		res.Answer = s.answer(ctx, question, res)
	}
	logger.Info("question answered",
		zap.Int("rows", res.RowCount),
		zap.Bool("truncated", res.Truncated),
		zap.Int("attempts", res.Attempts),
		zap.Duration("elapsed", time.Since(startTime)))
	return res, nil
}

func normalizedRows(rs *result.RowSet) *result.RowSet {
	if rs == nil {
		return &result.RowSet{Rows: []result.Row{}}
	}
	return result.Normalize(rs).(*result.RowSet)
}

// answer phrases res for the caller. A failed summary is logged and yields an
// empty answer; the rows are still returned.
func (s *Service) answer(ctx context.Context, question string, res *QueryResult) string {
	if res.RowCount == 0 {
		return noResultsAnswer
	}
	req := genai.AnswerRequest{
		Question: question,
		SQL:      res.SQL,
		Rows:     res.Data,
		RowCount: res.RowCount,
	}
	text, err := withRetry(ctx, s.requestLogger(ctx), s.cfg.Retry, func(ctx context.Context) (string, error) {
		return s.generator.SummarizeAnswer(ctx, req)
	})
	if err != nil {
		s.requestLogger(ctx).Warn("failed to summarize answer", logging.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

func (s *Service) generate(ctx context.Context, question string) (string, error) {
	req := genai.GenerateRequest{
		Question: question,
		Catalog:  s.catalog.Describe(),
		Examples: s.catalog.Examples(s.cfg.Examples),
		Dialect:  s.cfg.Dialect,
	}
	sql, err := withRetry(ctx, s.requestLogger(ctx), s.cfg.Retry, func(ctx context.Context) (string, error) {
		return s.generator.GenerateSQL(ctx, req)
	})
	if err != nil {
		return "", generationFailure(ctx, "failed to generate SQL", err)
	}
	return genai.StripCodeFences(sql), nil
}

func (s *Service) correct(ctx context.Context, failedSQL string, failure *AttemptError, question string) (string, error) {
	req := genai.CorrectionRequest{
		FailedSQL: failedSQL,
		ErrorText: failure.Message,
		Question:  question,
		Catalog:   s.catalog.Describe(),
		Dialect:   s.cfg.Dialect,
	}
	sql, err := withRetry(ctx, s.requestLogger(ctx), s.cfg.Retry, func(ctx context.Context) (string, error) {
		return s.generator.CorrectSQL(ctx, req)
	})
	if err != nil {
		return "", generationFailure(ctx, "failed to correct SQL", err)
	}
	return genai.StripCodeFences(sql), nil
}

func generationFailure(ctx context.Context, msg string, err error) error {
	var cancelled *ErrCancelled
	if errors.As(err, &cancelled) {
		return err
	}
	if ctx.Err() != nil {
		return &ErrCancelled{Msg: msg, Err: ctx.Err()}
	}
	return &GenerationError{Msg: msg, Err: err}
}

func (s *Service) requestLogger(ctx context.Context) *zap.Logger {
	if id, ok := RequestIDFromContext(ctx); ok {
		return s.logger.With(zap.String("request_id", id))
	}
	return s.logger
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the request id used in logs and results.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}


package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/catalog"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/result"
)

const (
	defaultModel      = "gemini-2.0-flash"
	sqlTemperature    = 0
	answerTemperature = 0.3
	maxOutputTokens   = 1024
)

// geminiClient implements the SQLGenerator interface using the Google Gemini API.
type geminiClient struct {
	client *genai.Client
	cfg    Config
}

// SQLGenerator turns questions into SQL, repairs SQL that failed and phrases
// the rows of a successful query as an answer.
type SQLGenerator interface {
	// GenerateSQL produces a first SQL candidate for a question.
	GenerateSQL(ctx context.Context, req GenerateRequest) (string, error)

	// CorrectSQL produces a replacement for SQL that was rejected or failed to execute.
	CorrectSQL(ctx context.Context, req CorrectionRequest) (string, error)

	// SummarizeAnswer answers the question in Brazilian Portuguese from the executed rows.
	SummarizeAnswer(ctx context.Context, req AnswerRequest) (string, error)

	// IsAPIKeyValid checks if the configured API key is functional.
	IsAPIKeyValid(ctx context.Context) error

	// Close cleans up any resources used by the client.
	Close() error
}

// GenerateRequest carries everything needed for a first attempt.
type GenerateRequest struct {
	Question string
	Catalog  string
	Examples []catalog.Example
	Dialect  string // database dialect name; empty means postgres
}

// CorrectionRequest carries the failed attempt. Fields are kept separate so
// the prompt never has to parse them back out of one string.
type CorrectionRequest struct {
	FailedSQL string
	ErrorText string
	Question  string
	Catalog   string
	Dialect   string
}

// AnswerRequest carries a successful query. Rows is the sample shown to the
// model; RowCount is the size of the full result.
type AnswerRequest struct {
	Question string
	SQL      string
	Rows     []result.Row
	RowCount int
}

// Config holds configuration for the GenAI client.
type Config struct {
	APIKey string
	Model  string
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, cfg Config) (SQLGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cannot create Gemini client: API key is missing")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
		zap.L().Info("Gemini model not specified, using default", zap.String("model", cfg.Model))
	}

	return &geminiClient{
		client: client,
		cfg:    cfg,
	}, nil
}

// Close cleans up the underlying Gemini client.
func (c *geminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAPIKeyValid checks if the Gemini API key is valid by listing models.
func (c *geminiClient) IsAPIKeyValid(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("gemini client not initialized (likely missing API key)")
	}

	modelIterator := c.client.ListModels(ctx)
	_, err := modelIterator.Next() // Attempt to list one model
	if err != nil {
		if st, ok := status.FromError(err); ok {
			if st.Code() == codes.Unauthenticated || st.Code() == codes.PermissionDenied {
				return fmt.Errorf("invalid Gemini API key or insufficient permissions: %w", err)
			}
		}
		return fmt.Errorf("failed to verify Gemini API key by listing models: %w", err)
	}
	return nil
}

// GenerateSQL asks the model for a query answering req.Question.
func (c *geminiClient) GenerateSQL(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Question == "" {
		return "", fmt.Errorf("question is empty")
	}
	return c.completeSQL(ctx, BuildGeneratePrompt(req))
}

// CorrectSQL asks the model to repair req.FailedSQL given the error it produced.
func (c *geminiClient) CorrectSQL(ctx context.Context, req CorrectionRequest) (string, error) {
	return c.completeSQL(ctx, BuildCorrectionPrompt(req))
}

// SummarizeAnswer asks the model to phrase req.Rows as a natural-language answer.
func (c *geminiClient) SummarizeAnswer(ctx context.Context, req AnswerRequest) (string, error) {
	text, err := c.complete(ctx, BuildAnswerPrompt(req), answerTemperature)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(text)
	if answer == "" {
		return "", fmt.Errorf("Gemini response contained no answer")
	}
	return answer, nil
}

func (c *geminiClient) completeSQL(ctx context.Context, prompt string) (string, error) {
	text, err := c.complete(ctx, prompt, sqlTemperature)
	if err != nil {
		return "", err
	}
	sql := extractSQL(text)
	if sql == "" {
		return "", fmt.Errorf("Gemini response contained no SQL")
	}
	zap.L().Debug("generated SQL", zap.String("model", c.cfg.Model), zap.Int("length", len(sql)))
	return sql, nil
}

func (c *geminiClient) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("gemini client not initialized")
	}

	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(maxOutputTokens)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}
	return getFirstTextPart(resp)
}

// getFirstTextPart extracts the first text part from a Gemini response.
func getFirstTextPart(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		safetyRatings := "none"
		if resp != nil && len(resp.Candidates) > 0 {
			finishReason = resp.Candidates[0].FinishReason.String()
			if resp.Candidates[0].SafetyRatings != nil {
				safetyRatings = fmt.Sprintf("%v", resp.Candidates[0].SafetyRatings)
			}
		}
		return "", fmt.Errorf("empty or incomplete response from Gemini API. FinishReason: %s, SafetyRatings: %s", finishReason, safetyRatings)
	}
	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response part type: %T", part)
	}
	return string(text), nil
}

// IsTransient reports whether err is a model API failure worth retrying
// without consuming a correction attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	}
	return false
}

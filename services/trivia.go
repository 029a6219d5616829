package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quiz-platform/models"

	"github.com/google/uuid"
)

const (
	DefaultOpenTDBURL   = "https://opentdb.com/api.php"
	DefaultTriviaAPIURL = "https://the-trivia-api.com/api/questions"
	MaxQuestions        = 50
)

var ErrInvalidParams = errors.New("invalid trivia parameters")

// UpstreamError is returned when a trivia API answers but reports failure.
type UpstreamError struct {
	Source string
	Code   int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error (code %d)", e.Source, e.Code)
}

type OpenTDBParams struct {
	Amount     int
	Category   int
	Difficulty string
	Type       string
}

type TriviaAPIParams struct {
	Limit      int
	Categories string
	Difficulty string
}

func validDifficulty(d string) bool {
	return d == "" || d == "easy" || d == "medium" || d == "hard"
}

func (p *OpenTDBParams) Validate() error {
	if p.Amount == 0 {
		p.Amount = 10
	}
	if p.Amount < 1 || p.Amount > MaxQuestions {
		return fmt.Errorf("%w: amount must be between 1 and %d", ErrInvalidParams, MaxQuestions)
	}
	if p.Category < 0 {
		return fmt.Errorf("%w: category must be a positive number", ErrInvalidParams)
	}
	if !validDifficulty(p.Difficulty) {
		return fmt.Errorf("%w: difficulty must be easy, medium or hard", ErrInvalidParams)
	}
	if p.Type != "" && p.Type != "multiple" && p.Type != "boolean" {
		return fmt.Errorf("%w: type must be multiple or boolean", ErrInvalidParams)
	}
	return nil
}

func (p *TriviaAPIParams) Validate() error {
	if p.Limit == 0 {
		p.Limit = 10
	}
	if p.Limit < 1 || p.Limit > MaxQuestions {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidParams, MaxQuestions)
	}
	if !validDifficulty(p.Difficulty) {
		return fmt.Errorf("%w: difficulty must be easy, medium or hard", ErrInvalidParams)
	}
	return nil
}

type TriviaClient struct {
	HTTP         *http.Client
	OpenTDBURL   string
	TriviaAPIURL string
	Rand         *rand.Rand
}

func NewTriviaClient(openTDBURL, triviaAPIURL string, timeout time.Duration) *TriviaClient {
	if openTDBURL == "" {
		openTDBURL = DefaultOpenTDBURL
	}
	if triviaAPIURL == "" {
		triviaAPIURL = DefaultTriviaAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TriviaClient{
		HTTP:         &http.Client{Timeout: timeout},
		OpenTDBURL:   openTDBURL,
		TriviaAPIURL: triviaAPIURL,
	}
}

type openTDBResponse struct {
	ResponseCode int             `json:"response_code"`
	Results      []openTDBResult `json:"results"`
}

type openTDBResult struct {
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Category         string   `json:"category"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type triviaAPIItem struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correctAnswer"`
	IncorrectAnswers []string `json:"incorrectAnswers"`
}

func (c *TriviaClient) OpenTDB(ctx context.Context, p OpenTDBParams) ([]models.Question, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	qs := url.Values{}
	qs.Set("amount", strconv.Itoa(p.Amount))
	if p.Category > 0 {
		qs.Set("category", strconv.Itoa(p.Category))
	}
	if p.Difficulty != "" {
		qs.Set("difficulty", p.Difficulty)
	}
	if p.Type != "" {
		qs.Set("type", p.Type)
	}

	var body openTDBResponse
	if err := c.getJSON(ctx, c.OpenTDBURL, qs, &body); err != nil {
		return nil, err
	}
	if body.ResponseCode != 0 {
		return nil, &UpstreamError{Source: "OpenTDB", Code: body.ResponseCode}
	}
	return c.mapOpenTDB(body.Results), nil
}

func (c *TriviaClient) TriviaAPI(ctx context.Context, p TriviaAPIParams) ([]models.Question, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	qs := url.Values{}
	qs.Set("limit", strconv.Itoa(p.Limit))
	if p.Categories != "" {
		qs.Set("categories", p.Categories)
	}
	if p.Difficulty != "" {
		qs.Set("difficulty", p.Difficulty)
	}

	var items []triviaAPIItem
	if err := c.getJSON(ctx, c.TriviaAPIURL, qs, &items); err != nil {
		return nil, err
	}
	return c.mapTriviaAPI(items), nil
}

// Fetch loads questions for a multiplayer quiz config.
func (c *TriviaClient) Fetch(ctx context.Context, cfg models.QuizConfig) ([]models.Question, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Source {
	case "triviaapi":
		return c.TriviaAPI(ctx, TriviaAPIParams{Limit: cfg.Amount, Categories: cfg.Category, Difficulty: cfg.Difficulty})
	case "opentdb":
		category := 0
		if cfg.Category != "" {
			n, err := strconv.Atoi(cfg.Category)
			if err != nil {
				return nil, fmt.Errorf("%w: category must be numeric for opentdb", ErrInvalidParams)
			}
			category = n
		}
		return c.OpenTDB(ctx, OpenTDBParams{Amount: cfg.Amount, Category: category, Difficulty: cfg.Difficulty})
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidParams, cfg.Source)
	}
}

func (c *TriviaClient) getJSON(ctx context.Context, base string, qs url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+qs.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &UpstreamError{Source: req.URL.Host, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", base, err)
	}
	return nil
}

func questionType(t string) string {
	if t == "boolean" {
		return models.TrueFalse
	}
	return models.MultipleChoice
}

func (c *TriviaClient) mapOpenTDB(results []openTDBResult) []models.Question {
	out := make([]models.Question, 0, len(results))
	for i, r := range results {
		correct := html.UnescapeString(r.CorrectAnswer)
		answers := []string{correct}
		for _, a := range r.IncorrectAnswers {
			answers = append(answers, html.UnescapeString(a))
		}
		out = append(out, models.Question{
			ID:         uuid.New(),
			Text:       html.UnescapeString(r.Question),
			Type:       questionType(r.Type),
			Order:      i + 1,
			Options:    buildOptions(Shuffle(c.Rand, answers), correct),
			Category:   r.Category,
			Difficulty: r.Difficulty,
			Source:     models.SourceOpenTDB,
		})
	}
	return out
}

func (c *TriviaClient) mapTriviaAPI(items []triviaAPIItem) []models.Question {
	out := make([]models.Question, 0, len(items))
	for i, it := range items {
		answers := append([]string{it.CorrectAnswer}, it.IncorrectAnswers...)
		out = append(out, models.Question{
			ID:         uuid.New(),
			Text:       it.Question,
			Type:       questionType(it.Type),
			Order:      i + 1,
			Options:    buildOptions(Shuffle(c.Rand, answers), it.CorrectAnswer),
			Category:   it.Category,
			Difficulty: it.Difficulty,
			Source:     models.SourceTriviaAPI,
		})
	}
	return out
}

func buildOptions(texts []string, correct string) []models.Option {
	opts := make([]models.Option, len(texts))
	for i, t := range texts {
		opts[i] = models.Option{ID: uuid.New(), Text: t, IsCorrect: t == correct}
	}
	return opts
}

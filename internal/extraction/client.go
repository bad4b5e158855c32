// Package extraction fills the AI-derived fields of collected jobs through
// an external chat-completion service.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"jobradar/internal/domain/job"

	"github.com/cockroachdb/errors"
)

// ErrExtraction marks a collaborator failure for one job.
var ErrExtraction = errors.New("extraction failed")

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
)

// Result is the decoded answer for one job.
type Result struct {
	job.Extraction
	SalaryMin      *float64 `json:"salary_min"`
	SalaryMax      *float64 `json:"salary_max"`
	SalaryCurrency string   `json:"salary_currency"`
	SalaryPeriod   string   `json:"salary_period"`
	SalaryType     string   `json:"salary_type"`
}

// Salary converts the salary part of r. Unknown types fall back to not_specified.
func (r Result) Salary() job.Salary {
	s := job.Salary{Min: r.SalaryMin, Max: r.SalaryMax, Type: job.SalaryNotSpecified}
	switch strings.ToLower(strings.TrimSpace(r.SalaryType)) {
	case job.SalaryRange:
		s.Type = job.SalaryRange
	case job.SalaryStarting:
		s.Type = job.SalaryStarting
	case job.SalaryNegotiable:
		s.Type = job.SalaryNegotiable
	}
	if s.Min != nil || s.Max != nil {
		if c := strings.ToUpper(strings.TrimSpace(r.SalaryCurrency)); c != "" {
			s.Currency = &c
		}
		if p := strings.ToLower(strings.TrimSpace(r.SalaryPeriod)); p != "" {
			s.Period = &p
		}
	} else if s.Type != job.SalaryNegotiable {
		s.Type = job.SalaryNotSpecified
	}
	return s
}

// Input is what the service sees of a job.
type Input struct {
	Title          string
	Company        string
	Description    string
	ExistingSalary string
}

type Extractor interface {
	Extract(ctx context.Context, in Input) (Result, error)
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint in JSON mode.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

const systemPrompt = "You analyse job postings and answer with a single JSON object."

const fieldsPrompt = `Return JSON with keys: core_skills (array of strings), nice_to_have_skills (array of strings),
realistic_experience_level (string), transferable_skills_indicators (array of strings),
actual_job_complexity (string), bias_removal_notes (string), salary_min (number or null),
salary_max (number or null), salary_currency (string), salary_period (year|month|week|day|hour),
salary_type (range|starting|negotiable|not_specified).`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
	Temperature    float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func userPrompt(in Input) string {
	var b strings.Builder
	b.WriteString(fieldsPrompt)
	b.WriteString("\n\nJob Title: ")
	b.WriteString(in.Title)
	b.WriteString("\nCompany: ")
	b.WriteString(in.Company)
	b.WriteString("\nExisting Salary Info: ")
	b.WriteString(in.ExistingSalary)
	b.WriteString("\nDescription:\n")
	b.WriteString(in.Description)
	return b.String()
}

func (c *Client) Extract(ctx context.Context, in Input) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(in)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.1,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, errors.Mark(errors.Wrap(err, "chat completion"), ErrExtraction)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Result{}, errors.Mark(errors.Newf("chat completion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))), ErrExtraction)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Result{}, errors.Mark(errors.Wrap(err, "decode chat completion"), ErrExtraction)
	}
	if len(cr.Choices) == 0 {
		return Result{}, errors.Mark(errors.New("chat completion: no choices"), ErrExtraction)
	}
	return ParseResult(cr.Choices[0].Message.Content)
}

// ParseResult decodes the JSON object the model returned. Code fences around
// the object are tolerated.
func ParseResult(content string) (Result, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var r Result
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Result{}, errors.Mark(errors.Wrap(err, "decode extraction result"), ErrExtraction)
	}
	r.CoreSkills = cleanList(r.CoreSkills)
	r.NiceToHaveSkills = cleanList(r.NiceToHaveSkills)
	r.TransferableSkillsIndicators = cleanList(r.TransferableSkillsIndicators)
	return r, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

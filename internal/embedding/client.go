package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"jobradar/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"

	embeddingsEndpoint = "/v1/embeddings"
	completionWindow   = "24h"
	maxErrorBody       = 4 << 10
)

// State is the service-side status of a batch, reduced to what the poller acts on.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// BatchStatus is the answer to one poll.
type BatchStatus struct {
	State          State
	RawStatus      string
	ResultLocation string
	ErrorLocation  string
	Failure        string
}

// BatchService is the external batch embedding collaborator.
type BatchService interface {
	SubmitBatch(ctx context.Context, reqs []Request) (string, error)
	PollBatch(ctx context.Context, batchID string) (BatchStatus, error)
	DownloadResults(ctx context.Context, location string) ([]byte, error)
}

// Embedder embeds texts synchronously; search uses it for query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

// Client talks to an OpenAI-compatible files, batches and embeddings API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *zap.SugaredLogger
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
		log:        logger.OrNop(cfg.Logger),
	}
}

func (c *Client) Model() string { return c.model }

type batchLine struct {
	CustomID string         `json:"custom_id"`
	Method   string         `json:"method"`
	URL      string         `json:"url"`
	Body     embeddingInput `json:"body"`
}

type embeddingInput struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// EncodeRequests renders reqs as the JSONL input file of a batch.
func (c *Client) EncodeRequests(reqs []Request) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range reqs {
		line := batchLine{
			CustomID: r.CustomID,
			Method:   http.MethodPost,
			URL:      embeddingsEndpoint,
			Body:     embeddingInput{Model: c.model, Input: r.Text},
		}
		if err := enc.Encode(line); err != nil {
			return nil, errors.Wrapf(err, "encode request %s", r.CustomID)
		}
	}
	return buf.Bytes(), nil
}

// SubmitBatch uploads the request file and creates a batch over it.
func (c *Client) SubmitBatch(ctx context.Context, reqs []Request) (string, error) {
	if len(reqs) == 0 {
		return "", errors.New("empty batch")
	}
	body, err := c.EncodeRequests(reqs)
	if err != nil {
		return "", err
	}

	fileID, err := c.uploadFile(ctx, body)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"input_file_id":     fileID,
		"endpoint":          embeddingsEndpoint,
		"completion_window": completionWindow,
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/batches", payload, &created); err != nil {
		return "", errors.Wrap(err, "create batch")
	}
	if created.ID == "" {
		return "", errors.New("create batch: empty batch id")
	}
	c.log.Infow("embedding batch created", "batch_id", created.ID, "input_file_id", fileID, "requests", len(reqs))
	return created.ID, nil
}

func (c *Client) uploadFile(ctx context.Context, jsonl []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "batch"); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", "embedding_batch.jsonl")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(jsonl); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &out); err != nil {
		return "", errors.Wrap(err, "upload batch file")
	}
	if out.ID == "" {
		return "", errors.New("upload batch file: empty file id")
	}
	return out.ID, nil
}

type batchObject struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OutputFileID string `json:"output_file_id"`
	ErrorFileID  string `json:"error_file_id"`
	Errors       *struct {
		Data []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	} `json:"errors"`
}

func (c *Client) PollBatch(ctx context.Context, batchID string) (BatchStatus, error) {
	var b batchObject
	if err := c.doJSON(ctx, http.MethodGet, "/batches/"+batchID, nil, &b); err != nil {
		return BatchStatus{}, errors.Wrapf(err, "poll batch %s", batchID)
	}
	st := BatchStatus{
		State:          mapState(b.Status),
		RawStatus:      b.Status,
		ResultLocation: b.OutputFileID,
		ErrorLocation:  b.ErrorFileID,
	}
	if st.State == StateFailed {
		st.Failure = "batch " + b.Status
		if b.Errors != nil && len(b.Errors.Data) > 0 {
			msgs := make([]string, 0, len(b.Errors.Data))
			for _, e := range b.Errors.Data {
				msgs = append(msgs, e.Code+": "+e.Message)
			}
			st.Failure = strings.Join(msgs, "; ")
		}
	}
	return st, nil
}

func mapState(s string) State {
	switch s {
	case "validating":
		return StateQueued
	case "in_progress", "finalizing":
		return StateRunning
	case "completed":
		return StateCompleted
	case "failed", "expired", "cancelling", "cancelled":
		return StateFailed
	}
	return StateRunning
}

func (c *Client) DownloadResults(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, errors.New("empty result location")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+location+"/content", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "download results %s", location)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(resp)
	}
	return io.ReadAll(resp.Body)
}

// Embed calls the synchronous embeddings endpoint.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/embeddings", embeddingInput{Model: c.model, Input: texts}, &out); err != nil {
		return nil, errors.Wrap(err, "embed")
	}
	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, errors.Newf("embed: index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, errors.Newf("embed: missing vector for input %d", i)
		}
	}
	return vecs, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func statusErr(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return errors.Newf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

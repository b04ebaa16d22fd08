package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/retry"
)

// TEIConfig configures a Text Embeddings Inference reranker client.
type TEIConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// TEIScorer calls the TEI /rerank endpoint of a cross-encoder such as
// BAAI/bge-reranker-v2-m3. Scores are raw logits, so a threshold of 0
// separates relevant from irrelevant pairs.
type TEIScorer struct {
	baseURL string
	model   string
	client  *http.Client
}

type teiRerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type teiRerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewTEIScorer creates a TEI reranker client.
func NewTEIScorer(cfg TEIConfig) (*TEIScorer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TEIScorer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name implements Scorer.
func (s *TEIScorer) Name() string { return "tei" }

// Score implements Scorer. TEI returns results sorted by score; they are
// put back in input order by index.
func (s *TEIScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	body, err := json.Marshal(teiRerankRequest{Query: query, Texts: texts, RawScores: true, Truncate: true})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling reranker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	var results []teiRerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(results) != len(texts) {
		return nil, retry.Permanent(fmt.Errorf("got %d results for %d texts", len(results), len(texts)))
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) || seen[r.Index] {
			return nil, retry.Permanent(fmt.Errorf("invalid result index %d", r.Index))
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	return scores, nil
}

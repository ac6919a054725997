// Package rag talks to an optional retrieval service. Failures degrade to an
// empty result set: generation proceeds without context rather than erroring.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/config"
)

// Document is one retrieved chunk. The upstream service's schema varies, so
// unmarshalling is tolerant of the common field spellings.
type Document struct {
	Content string `json:"content"`
	Text    string `json:"text"`
	Source  string `json:"source"`
	Score   float64 `json:"score"`

	Metadata struct {
		Source string `json:"source"`
	} `json:"metadata"`
}

func (d Document) body() string {
	if d.Content != "" {
		return d.Content
	}
	return d.Text
}

func (d Document) origin(fallback string) string {
	if d.Source != "" {
		return d.Source
	}
	if d.Metadata.Source != "" {
		return d.Metadata.Source
	}
	return fallback
}

type Status struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url,omitempty"`
	TopK    int    `json:"top_k"`
}

type Client interface {
	// Retrieve returns relevant documents for a query, or an empty slice when
	// the service is disabled, unreachable, or slow.
	Retrieve(ctx context.Context, query string, topK int) []Document
	Available(ctx context.Context) bool
	Status() Status
}

type httpClient struct {
	cfg    config.RAGConfig
	log    *zap.Logger
	client *http.Client
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func NewClient(p Params) Client {
	timeout := time.Duration(p.Config.RAG.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &httpClient{
		cfg:    p.Config.RAG,
		log:    p.Log.Named("rag.client"),
		client: &http.Client{Timeout: timeout},
	}
	if c.cfg.Enabled {
		c.log.Info("retrieval enabled", zap.String("base_url", c.cfg.BaseURL))
	} else {
		c.log.Info("retrieval disabled")
	}
	return c
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// queryResponse covers both envelope spellings the upstream may use. A bare
// JSON array is handled separately.
type queryResponse struct {
	Results   []Document `json:"results"`
	Documents []Document `json:"documents"`
}

func (c *httpClient) Retrieve(ctx context.Context, query string, topK int) []Document {
	if !c.cfg.Enabled {
		return nil
	}
	if topK <= 0 {
		topK = c.cfg.TopK
	}

	body, err := json.Marshal(queryRequest{Query: query, TopK: topK})
	if err != nil {
		return nil
	}

	url := c.cfg.BaseURL + c.cfg.QueryPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("retrieval query failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("retrieval query rejected", zap.Int("status", resp.StatusCode))
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err == nil {
		return docs
	}
	var envelope queryResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.log.Warn("retrieval response unparseable", zap.Error(err))
		return nil
	}
	if envelope.Results != nil {
		return envelope.Results
	}
	return envelope.Documents
}

func (c *httpClient) Available(ctx context.Context) bool {
	if !c.cfg.Enabled {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+c.cfg.HealthPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

func (c *httpClient) Status() Status {
	s := Status{Enabled: c.cfg.Enabled, TopK: c.cfg.TopK}
	if c.cfg.Enabled {
		s.BaseURL = c.cfg.BaseURL
	}
	return s
}

// FormatContext renders retrieved documents as a prompt preamble.
func FormatContext(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Relevant Context\n")
	for i, doc := range docs {
		fallback := fmt.Sprintf("Document %d", i+1)
		b.WriteString(fmt.Sprintf("\n### Source %d: %s\n%s\n", i+1, doc.origin(fallback), doc.body()))
	}
	return b.String()
}

var Module = fx.Module("rag",
	fx.Provide(NewClient),
)

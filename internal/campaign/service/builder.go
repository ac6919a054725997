package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noxloop/digiforge/internal/campaign/domain"
	"github.com/noxloop/digiforge/internal/llm"
	"github.com/noxloop/digiforge/internal/metrics"
	"github.com/noxloop/digiforge/internal/rag"
)

const campaignSystemPrompt = `You are an expert in digital marketing and high-conversion copywriting.
You produce persuasive, professional, results-oriented content.
Always respond in the requested language.
Follow instructions exactly and format the output as requested.`

const jsonOnlyReminder = "IMPORTANT: Respond ONLY with valid JSON, no additional text."

const rawTruncateLimit = 500

// builder runs the five slot generations. Slots are independent: each one
// either parses into its value or degrades to an error shape, and the
// campaign always assembles once every slot call returns.
type builder struct {
	llm     llm.Client
	rag     rag.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

func newBuilder(llmClient llm.Client, ragClient rag.Client, log *zap.Logger, m *metrics.Metrics) *builder {
	return &builder{llm: llmClient, rag: ragClient, log: log, metrics: m}
}

func (b *builder) assemble(ctx context.Context, cfg domain.Config, useRAG bool) (domain.Assets, bool) {
	ragContext := ""
	if useRAG {
		query := fmt.Sprintf("%s %s marketing %s", cfg.Niche, cfg.Product, cfg.Channel)
		if docs := b.rag.Retrieve(ctx, query, 0); len(docs) > 0 {
			ragContext = rag.FormatContext(docs)
		}
	}

	var assets domain.Assets
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		assets.LandingCopy = b.generateSlot(gctx, domain.SlotLandingCopy, landingCopyPrompt(cfg, ragContext), 2000)
		return nil
	})
	g.Go(func() error {
		assets.AdVariations = coerceArray(b.generateSlot(gctx, domain.SlotAdVariations, adVariationsPrompt(cfg, ragContext), 2000))
		return nil
	})
	g.Go(func() error {
		assets.CreativeIdeas = coerceArray(b.generateSlot(gctx, domain.SlotCreativeIdeas, creativeIdeasPrompt(cfg), 2000))
		return nil
	})
	g.Go(func() error {
		assets.EmailSequence = coerceArray(b.generateSlot(gctx, domain.SlotEmailSequence, emailSequencePrompt(cfg, ragContext), 4000))
		return nil
	})
	g.Go(func() error {
		assets.Checklist = coerceArray(b.generateSlot(gctx, domain.SlotChecklist, checklistPrompt(cfg), 2000))
		return nil
	})
	g.Wait()

	return assets, ragContext != ""
}

func (b *builder) generateSlot(ctx context.Context, slot, prompt string, maxTokens int) any {
	response, err := b.llm.Generate(ctx, prompt, campaignSystemPrompt, maxTokens)
	if err != nil {
		b.log.Warn("slot generation failed", zap.String("slot", slot), zap.Error(err))
		b.metrics.SlotFailuresTotal.WithLabelValues(slot).Inc()
		return map[string]any{"error": "Generation failed: " + err.Error(), "raw": ""}
	}

	value, parseErr := parseSlotResponse(response)
	if parseErr != nil {
		b.log.Warn("slot response unparseable", zap.String("slot", slot), zap.Error(parseErr))
		b.metrics.SlotFailuresTotal.WithLabelValues(slot).Inc()
	}
	return value
}

// parseSlotResponse strips an optional Markdown code fence, then parses the
// JSON. Parse failure yields the {error, raw} shape with raw truncated, plus
// the parse error for logging.
func parseSlotResponse(response string) (any, error) {
	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "```json") {
		text = text[7:]
	}
	if strings.HasPrefix(text, "```") {
		text = text[3:]
	}
	if strings.HasSuffix(text, "```") {
		text = text[:len(text)-3]
	}
	text = strings.TrimSpace(text)

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return map[string]any{
			"error": "Failed to parse response",
			"raw":   truncate(text, rawTruncateLimit),
		}, err
	}
	return value, nil
}

// coerceArray turns any non-array slot value (including the error shape)
// into an empty list, so array slots are always arrays.
func coerceArray(value any) []any {
	if arr, ok := value.([]any); ok {
		return arr
	}
	return []any{}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func landingCopyPrompt(cfg domain.Config, ragContext string) string {
	return fmt.Sprintf(`%s

Write copy for a sales landing page with the following inputs:
- Niche: %s
- Product: %s
- Offer: %s
- Price: %s
- Objective: %s
- Tone: %s
- Language: %s

Produce valid JSON:
{
    "headline": "Main title (max 10 words)",
    "subheadline": "Subtitle reinforcing value (max 20 words)",
    "hero_text": "Opening paragraph (2-3 sentences)",
    "bullets": ["Benefit 1", "Benefit 2", "Benefit 3", "Benefit 4", "Benefit 5"],
    "social_proof": "Social proof statement",
    "cta_primary": "Primary button text",
    "cta_secondary": "Alternative button text",
    "urgency": "Urgency/scarcity element",
    "guarantee": "Guarantee offered",
    "faq": [
        {"q": "Question 1", "a": "Answer 1"},
        {"q": "Question 2", "a": "Answer 2"},
        {"q": "Question 3", "a": "Answer 3"}
    ]
}

%s`, ragContext, cfg.Niche, cfg.Product, cfg.Offer, cfg.Price, cfg.Objective, cfg.Tone, cfg.Language, jsonOnlyReminder)
}

func adVariationsPrompt(cfg domain.Config, ragContext string) string {
	return fmt.Sprintf(`%s

Write 5 ad variations for %s:
- Niche: %s
- Product: %s
- Offer: %s
- Price: %s
- Objective: %s
- Tone: %s
- Language: %s

Produce valid JSON - an array of 5 objects:
[
    {
        "hook": "Opening hook (1 punchy sentence)",
        "body": "Ad body (2-3 sentences)",
        "cta": "Call to action",
        "style": "Style used (e.g. curiosity, pain, benefit)"
    },
    ... (4 more variations)
]

%s`, ragContext, cfg.Channel, cfg.Niche, cfg.Product, cfg.Offer, cfg.Price, cfg.Objective, cfg.Tone, cfg.Language, jsonOnlyReminder)
}

func creativeIdeasPrompt(cfg domain.Config) string {
	return fmt.Sprintf(`Write 5 creative/visual ideas for ads on %s:
- Niche: %s
- Product: %s
- Offer: %s
- Tone: %s
- Language: %s

Produce valid JSON - an array of 5 objects:
[
    {
        "concept": "Creative concept",
        "visual_description": "Detailed visual description (what to show)",
        "text_overlay": "Text to place over the image",
        "format": "Suggested format (carousel, short video, single image, etc.)"
    },
    ... (4 more ideas)
]

%s`, cfg.Channel, cfg.Niche, cfg.Product, cfg.Offer, cfg.Tone, cfg.Language, jsonOnlyReminder)
}

func emailSequencePrompt(cfg domain.Config, ragContext string) string {
	return fmt.Sprintf(`%s

Write a 5-email sales sequence:
- Niche: %s
- Product: %s
- Offer: %s
- Price: %s
- Objective: %s
- Tone: %s
- Language: %s

Sequence:
1) Welcome email + problem introduction
2) Educational email + problem agitation
3) Solution email + product presentation
4) Social proof email + objections
5) Urgency email + last call

Produce valid JSON - an array of 5 objects:
[
    {
        "day": 1,
        "purpose": "Purpose of the email",
        "subject_line": "Subject line",
        "preview_text": "Preview text",
        "body": "Full email body (3-5 paragraphs)",
        "cta": "Call to action"
    },
    ... (4 more emails)
]

%s`, ragContext, cfg.Niche, cfg.Product, cfg.Offer, cfg.Price, cfg.Objective, cfg.Tone, cfg.Language, jsonOnlyReminder)
}

func checklistPrompt(cfg domain.Config) string {
	return fmt.Sprintf(`Write a step-by-step checklist for launching a campaign on %s:
- Objective: %s
- Language: %s

Produce valid JSON - an array of ordered tasks:
[
    {
        "step": 1,
        "task": "Task description",
        "details": "Additional details or tips",
        "priority": "high/medium/low"
    },
    ... (10-15 tasks)
]

%s`, cfg.Channel, cfg.Objective, cfg.Language, jsonOnlyReminder)
}

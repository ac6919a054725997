package service

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noxloop/digiforge/internal/campaign/domain"
)

// exportFiles renders the campaign into its bundle: one full-fidelity JSON
// file plus a markdown document per slot. The file set is fixed, so archive
// membership is deterministic for a given campaign.
func exportFiles(c *domain.Campaign) ([]exportFile, error) {
	full, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal campaign: %w", err)
	}

	var cfg domain.Config
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	var assets struct {
		LandingCopy   any   `json:"landing_copy"`
		AdVariations  []any `json:"ad_variations"`
		CreativeIdeas []any `json:"creative_ideas"`
		EmailSequence []any `json:"email_sequence"`
		Checklist     []any `json:"checklist"`
	}
	if err := json.Unmarshal(c.Assets, &assets); err != nil {
		return nil, fmt.Errorf("unmarshal assets: %w", err)
	}

	return []exportFile{
		{Name: "campaign.json", Content: full},
		{Name: "landing_copy.md", Content: []byte(landingToMarkdown(assets.LandingCopy, cfg))},
		{Name: "ad_variations.md", Content: []byte(adsToMarkdown(assets.AdVariations, cfg))},
		{Name: "creative_ideas.md", Content: []byte(creativesToMarkdown(assets.CreativeIdeas, cfg))},
		{Name: "email_sequence.md", Content: []byte(emailsToMarkdown(assets.EmailSequence, cfg))},
		{Name: "checklist.md", Content: []byte(checklistToMarkdown(assets.Checklist, cfg))},
	}, nil
}

type exportFile struct {
	Name    string
	Content []byte
}

// buildArchive zips the rendered files under flat relative paths.
func buildArchive(files []exportFile) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.Content); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func field(m map[string]any, key string) string {
	if m == nil {
		return "N/A"
	}
	v, ok := m[key]
	if !ok || v == nil {
		return "N/A"
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "N/A"
		}
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func landingToMarkdown(data any, cfg domain.Config) string {
	obj := asObject(data)
	if errMsg, ok := obj["error"]; ok {
		raw, _ := obj["raw"].(string)
		return fmt.Sprintf("# Error\n%v\n\n```\n%s\n```", errMsg, raw)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Landing Page Copy\n**Product:** %s\n**Offer:** %s\n\n---\n\n", orNA(cfg.Product), orNA(cfg.Offer))
	fmt.Fprintf(&b, "## Headline\n%s\n\n", field(obj, "headline"))
	fmt.Fprintf(&b, "## Subheadline\n%s\n\n", field(obj, "subheadline"))
	fmt.Fprintf(&b, "## Hero Text\n%s\n\n", field(obj, "hero_text"))

	b.WriteString("## Benefits\n")
	if bullets, ok := obj["bullets"].([]any); ok {
		for _, bullet := range bullets {
			fmt.Fprintf(&b, "- %v\n", bullet)
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Social Proof\n%s\n\n", field(obj, "social_proof"))
	fmt.Fprintf(&b, "## CTAs\n- **Primary:** %s\n- **Secondary:** %s\n\n", field(obj, "cta_primary"), field(obj, "cta_secondary"))
	fmt.Fprintf(&b, "## Urgency\n%s\n\n", field(obj, "urgency"))
	fmt.Fprintf(&b, "## Guarantee\n%s\n\n", field(obj, "guarantee"))

	b.WriteString("## FAQ\n")
	if faqs, ok := obj["faq"].([]any); ok {
		for _, item := range faqs {
			faq := asObject(item)
			fmt.Fprintf(&b, "**Q: %s**\nA: %s\n\n", field(faq, "q"), field(faq, "a"))
		}
	}
	return b.String()
}

func adsToMarkdown(data []any, cfg domain.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Ad Variations\n**Channel:** %s\n**Product:** %s\n\n---\n\n", orNA(cfg.Channel), orNA(cfg.Product))
	for i, item := range data {
		ad := asObject(item)
		fmt.Fprintf(&b, "## Variation %d (%s)\n\n", i+1, field(ad, "style"))
		fmt.Fprintf(&b, "**Hook:** %s\n\n", field(ad, "hook"))
		fmt.Fprintf(&b, "**Body:**\n%s\n\n", field(ad, "body"))
		fmt.Fprintf(&b, "**CTA:** %s\n\n---\n\n", field(ad, "cta"))
	}
	return b.String()
}

func creativesToMarkdown(data []any, cfg domain.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Creative Ideas\n**Channel:** %s\n**Product:** %s\n\n---\n\n", orNA(cfg.Channel), orNA(cfg.Product))
	for i, item := range data {
		creative := asObject(item)
		fmt.Fprintf(&b, "## Idea %d\n\n", i+1)
		fmt.Fprintf(&b, "**Concept:** %s\n\n", field(creative, "concept"))
		fmt.Fprintf(&b, "**Visual Description:**\n%s\n\n", field(creative, "visual_description"))
		fmt.Fprintf(&b, "**Text Overlay:** %s\n\n", field(creative, "text_overlay"))
		fmt.Fprintf(&b, "**Format:** %s\n\n---\n\n", field(creative, "format"))
	}
	return b.String()
}

func emailsToMarkdown(data []any, cfg domain.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Email Sequence\n**Product:** %s\n**Offer:** %s\n\n---\n\n", orNA(cfg.Product), orNA(cfg.Offer))
	for _, item := range data {
		email := asObject(item)
		day := field(email, "day")
		if day == "N/A" {
			day = "?"
		}
		fmt.Fprintf(&b, "## Day %s - %s\n\n", day, field(email, "purpose"))
		fmt.Fprintf(&b, "**Subject:** %s\n\n", field(email, "subject_line"))
		fmt.Fprintf(&b, "**Preview:** %s\n\n", field(email, "preview_text"))
		fmt.Fprintf(&b, "**Body:**\n%s\n\n", field(email, "body"))
		fmt.Fprintf(&b, "**CTA:** %s\n\n---\n\n", field(email, "cta"))
	}
	return b.String()
}

var priorityMarkers = map[string]string{
	"high":   "🔴",
	"medium": "🟡",
	"low":    "🟢",
}

func checklistToMarkdown(data []any, cfg domain.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Launch Checklist\n**Channel:** %s\n**Objective:** %s\n\n---\n\n", orNA(cfg.Channel), orNA(cfg.Objective))
	for _, item := range data {
		task := asObject(item)
		marker, ok := priorityMarkers[strings.ToLower(field(task, "priority"))]
		if !ok {
			marker = "⚪"
		}
		step := field(task, "step")
		if step == "N/A" {
			step = "?"
		}
		fmt.Fprintf(&b, "- [ ] **%s. %s** %s\n", step, field(task, "task"), marker)
		if details := field(task, "details"); details != "N/A" {
			fmt.Fprintf(&b, "  %s\n", details)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

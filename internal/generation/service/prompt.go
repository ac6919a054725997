package service

import "fmt"

const productSystemPrompt = "You are an expert in premium digital product creation. You produce detailed, professional content."

var productTypePrompts = map[string]string{
	"ebook":    "Write a complete eBook about %q for %s.",
	"guide":    "Write a practical guide about %q for %s.",
	"course":   "Write a course outline about %q for %s.",
	"template": "Write a professional template about %q for %s.",
}

func buildProductPrompt(productType, topic, audience, tone, language string) string {
	format, ok := productTypePrompts[productType]
	if !ok {
		format = productTypePrompts["guide"]
	}
	base := fmt.Sprintf(format, topic, audience)

	return fmt.Sprintf(`%s

Tone: %s
Language: %s

Structure the content professionally with:
- Title and introduction
- Detailed main sections
- Conclusion with a call to action

Format in Markdown.`, base, tone, language)
}

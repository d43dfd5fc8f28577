package operations

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/go-rod/rod"

	"github.com/weblinq/gateway/internal/config"
	"github.com/weblinq/gateway/internal/gatewayerr"
)

// maxContextTokens, reserveForCompletion, and reserveForSystem compose the
// ≤19,404-token budget spec.md §4.4 names for the JSON-extraction prompt:
// 24000 - 4096 - 500.
const (
	maxContextTokens     = 24000
	reserveForCompletion = 4096
	reserveForSystem     = 500
	maxPromptTokens      = maxContextTokens - reserveForCompletion - reserveForSystem
)

// estimateTokens falls back to ceil(chars/4) — no tiktoken-equivalent
// tokenizer exists in the dependency pack, so this is the documented
// stdlib-only exception (see DESIGN.md).
func estimateTokens(s string) int {
	return int(math.Ceil(float64(len(s)) / 4.0))
}

// extractPageScript reads <title>, the meta description, and every
// application/ld+json script tag.
const extractPageScript = `() => {
	const title = document.title || '';
	const metaDesc = document.querySelector('meta[name="description"]');
	const description = metaDesc ? metaDesc.getAttribute('content') || '' : '';
	const ldJsonNodes = Array.from(document.querySelectorAll('script[type="application/ld+json"]'));
	const ldJson = ldJsonNodes.map(n => n.textContent).filter(Boolean);
	return { title, description, ldJson };
}`

type pageMeta struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	LDJSON      []string `json:"ldJson"`
}

// RunJSONExtraction obtains markdown, builds the structured prompt
// payload, truncates to budget, calls the AI model, and tolerantly
// parses its response per spec.md §4.4.
func (r *Runner) RunJSONExtraction(ctx context.Context, req JSONExtractionRequest, cfg *config.Config) Envelope {
	mdEnvelope := r.RunMarkdown(ctx, req.CommonRequest)
	if !mdEnvelope.Success {
		return mdEnvelope
	}
	mdResult, ok := mdEnvelope.Data.(MarkdownResult)
	if !ok {
		return Failure("internal error building markdown payload")
	}

	meta, err := r.fetchPageMeta(ctx, req.URL)
	if err != nil {
		return envelopeFromErr(err)
	}

	ldJSONBlock := ""
	if len(meta.LDJSON) > 0 {
		ldJSONBlock = "\n\n" + strings.Join(meta.LDJSON, "\n")
	}

	payload := fmt.Sprintf(
		"Page Title: %s\nMeta Description: %s\nPage URL: %s\nWord Count: %d\n%s\n\nPage Content (Structured Markdown):\n%s",
		meta.Title, meta.Description, req.URL, mdResult.WordCount, ldJSONBlock, mdResult.Markdown,
	)

	originalTokens := estimateTokens(payload)
	truncated := false
	finalPayload := payload
	if originalTokens > maxPromptTokens {
		finalPayload = truncateToTokenBudget(payload, maxPromptTokens)
		truncated = true
	}
	finalTokens := estimateTokens(finalPayload)

	responseType := req.ResponseType
	if responseType == "" {
		responseType = "json"
	}

	extracted, inputTokens, outputTokens, err := r.callExtraction(ctx, cfg, req, finalPayload, responseType)
	if err != nil {
		return envelopeFromErr(err)
	}

	return Success(KindJSONExtraction, JSONExtractionResult{
		Extracted: extracted,
		Metadata: ExtractionMetadata{
			InputTokens:           inputTokens,
			OutputTokens:          outputTokens,
			OriginalContentTokens: originalTokens,
			FinalContentTokens:    finalTokens,
			ContentTruncated:      truncated,
		},
	})
}

// truncateToTokenBudget drops whole paragraphs from the tail until the
// payload fits budget tokens, appending a truncation marker.
func truncateToTokenBudget(payload string, budget int) string {
	const marker = "\n\n[Content truncated due to length...]"
	paragraphs := strings.Split(payload, "\n\n")
	for estimateTokens(strings.Join(paragraphs, "\n\n")+marker) > budget && len(paragraphs) > 1 {
		paragraphs = paragraphs[:len(paragraphs)-1]
	}
	return strings.Join(paragraphs, "\n\n") + marker
}

func (r *Runner) fetchPageMeta(ctx context.Context, url string) (pageMeta, error) {
	pp, err := r.navigate(ctx, KindJSONExtraction, url)
	if err != nil {
		return pageMeta{}, err
	}
	defer pp.Close()

	result, err := pp.page.Evaluate(rod.Eval(extractPageScript).ByPromise())
	if err != nil {
		return pageMeta{}, gatewayerr.UpstreamTransient("failed to read page metadata", err)
	}
	var meta pageMeta
	if err := result.Value.Unmarshal(&meta); err != nil {
		return pageMeta{}, gatewayerr.Internal("failed to parse page metadata", err)
	}
	return meta, nil
}

// callExtraction issues the AI chat call and tolerantly parses its
// response, per spec.md §4.4's responseType × prompt × response_format
// matrix.
func (r *Runner) callExtraction(ctx context.Context, cfg *config.Config, req JSONExtractionRequest, content, responseType string) (interface{}, int, int, error) {
	client := anthropic.NewClient()

	systemPrompt := "You extract information from web page content and respond precisely to the user's instructions."
	if req.Instructions != "" {
		systemPrompt += " " + req.Instructions
	}

	userPrompt := content
	if req.Prompt != "" {
		userPrompt = req.Prompt + "\n\n" + content
	}
	if responseType == "json" && req.ResponseFormat != nil {
		schemaJSON, _ := json.Marshal(req.ResponseFormat.JSONSchema)
		userPrompt = fmt.Sprintf("%s\n\nRespond with JSON matching this schema:\n%s", userPrompt, string(schemaJSON))
	}
	if responseType == "json" {
		userPrompt += "\n\nRespond with a single JSON object only, no prose."
	}

	model := cfg.AnthropicModel
	if model == "" {
		model = "claude-haiku-4-5"
	}

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   4096,
		Temperature: anthropic.Float(0.1),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt))},
	})
	if err != nil {
		return nil, 0, 0, gatewayerr.UpstreamTransient("AI extraction call failed", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	inputTokens := int(msg.Usage.InputTokens)
	outputTokens := int(msg.Usage.OutputTokens)

	if responseType == "text" {
		return text, inputTokens, outputTokens, nil
	}

	parsed, err := tolerantJSONParse(text)
	if err != nil {
		return nil, inputTokens, outputTokens, gatewayerr.UpstreamFatal("AI response was not valid JSON", err)
	}
	return parsed, inputTokens, outputTokens, nil
}

var (
	jsonFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	greedyJSONRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// tolerantJSONParse implements spec.md §4.4/§8's 4-strategy cleanup
// ladder: direct parse, fence-strip, brace-depth walk, greedy regex.
func tolerantJSONParse(s string) (interface{}, error) {
	s = strings.TrimSpace(s)

	var direct interface{}
	if err := json.Unmarshal([]byte(s), &direct); err == nil {
		return direct, nil
	}

	if m := jsonFenceRe.FindStringSubmatch(s); m != nil {
		var fenced interface{}
		if err := json.Unmarshal([]byte(m[1]), &fenced); err == nil {
			return fenced, nil
		}
	}

	if obj, ok := braceWalk(s); ok {
		var walked interface{}
		if err := json.Unmarshal([]byte(obj), &walked); err == nil {
			return walked, nil
		}
	}

	if m := greedyJSONRe.FindString(s); m != "" {
		var greedy interface{}
		if err := json.Unmarshal([]byte(m), &greedy); err == nil {
			return greedy, nil
		}
	}

	return nil, fmt.Errorf("no valid JSON object found in response")
}

// braceWalk locates the first '{' and walks forward tracking brace depth,
// honoring string state and backslash escapes, returning the substring
// through the matching '}'.
func braceWalk(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

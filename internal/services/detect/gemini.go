package detect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	gocache "github.com/patrickmn/go-cache"
	"google.golang.org/api/option"
)

// CategorizeInput is everything a model call needs. The API key is per
// church; the category list is the closed set the model must choose from.
type CategorizeInput struct {
	APIKey      string
	Description string
	Amount      float64
	Categories  []string
}

// CategorizeResult is a model-proposed category with its reported confidence.
type CategorizeResult struct {
	Category   string
	Confidence float64
}

// Provider is the external AI categorization service. Implementations must
// honour the context deadline; the detector treats any failure as no
// suggestion.
type Provider interface {
	Categorize(ctx context.Context, input CategorizeInput) (*CategorizeResult, error)
}

// clientIdleTTL bounds how long an unused per-key client is kept. The idle
// window is far longer than any single call, so eviction never closes a
// client mid-request.
const clientIdleTTL = time.Hour

// GeminiProvider categorizes via the Gemini API, one client per API key.
// Clients idle past the TTL are evicted and closed so the cache does not
// grow with tenant count forever.
type GeminiProvider struct {
	model string

	mu      sync.Mutex
	clients *gocache.Cache
}

func NewGeminiProvider() *GeminiProvider {
	clients := gocache.New(clientIdleTTL, 2*clientIdleTTL)
	clients.OnEvicted(func(_ string, v interface{}) {
		v.(*genai.Client).Close()
	})
	return &GeminiProvider{
		model:   "gemini-1.5-flash",
		clients: clients,
	}
}

func (p *GeminiProvider) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.clients.Get(apiKey); ok {
		c := v.(*genai.Client)
		// refresh the idle window; Set on an existing key replaces without
		// firing the eviction handler
		p.clients.SetDefault(apiKey, c)
		return c, nil
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	p.clients.SetDefault(apiKey, c)
	return c, nil
}

func (p *GeminiProvider) Categorize(ctx context.Context, input CategorizeInput) (*CategorizeResult, error) {
	if input.APIKey == "" {
		return nil, fmt.Errorf("no api key configured")
	}
	client, err := p.client(ctx, input.APIKey)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`You are a church bookkeeping assistant categorizing bank statement lines.
Pick the single best category for this transaction from the list below.

Transaction:
- Description: %s
- Amount: %.2f

Categories:
%s

Respond in exactly this format, nothing else:
Category: <category name>
Confidence: <0-100>`,
		input.Description,
		input.Amount,
		strings.Join(input.Categories, "\n"))

	model := client.GenerativeModel(p.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini call failed: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty gemini response")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected gemini response part")
	}

	return parseModelResponse(string(text))
}

// parseModelResponse extracts "Category:" and "Confidence:" lines from the
// model output. A missing confidence line falls back to a middling score.
func parseModelResponse(text string) (*CategorizeResult, error) {
	result := &CategorizeResult{Confidence: 0.6}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "category:"):
			result.Category = strings.TrimSpace(line[len("category:"):])
		case strings.HasPrefix(lower, "confidence:"):
			raw := strings.TrimSuffix(strings.TrimSpace(line[len("confidence:"):]), "%")
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				result.Confidence = v / 100
			}
		}
	}
	if result.Category == "" {
		return nil, fmt.Errorf("no category in model response")
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result, nil
}

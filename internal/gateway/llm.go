package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/project-tktt/job-scout/internal/domain"
	"github.com/project-tktt/job-scout/internal/metrics"
)

const (
	defaultListingModel = "gpt-4.1-mini"
	defaultDetailModel  = "gpt-4.1"
	defaultTimeout      = 45 * time.Second
)

// LLM implements Extractor by fetching a page and asking a model to pull
// structured data out of it. A cheaper model handles listing pages; detail
// pages get the stronger one. No retries happen here: one call, one verdict.
type LLM struct {
	client       openai.Client
	fetcher      *Fetcher
	recorder     *metrics.Recorder
	listingModel string
	detailModel  string
	timeout      time.Duration
	now          func() time.Time
}

// NewLLM creates the model-backed extractor.
func NewLLM(apiKey string, fetcher *Fetcher, recorder *metrics.Recorder, listingModel, detailModel string, timeout time.Duration) (*LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key not set")
	}
	if listingModel == "" {
		listingModel = defaultListingModel
	}
	if detailModel == "" {
		detailModel = defaultDetailModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &LLM{
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
		fetcher:      fetcher,
		recorder:     recorder,
		listingModel: listingModel,
		detailModel:  detailModel,
		timeout:      timeout,
		now:          time.Now,
	}, nil
}

// ExtractListings fetches a listing page and extracts its job postings.
// Items that fail validation are dropped individually with a warning.
func (g *LLM) ExtractListings(ctx context.Context, pageURL string) ([]domain.ListingCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content, err := g.fetcher.FetchContent(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing page: %w", err)
	}

	todayISO := g.now().UTC().Format("2006-01-02")
	raw, err := g.complete(ctx, metrics.KindListingExtract, g.listingModel, pageURL,
		listingSystemPrompt, listingUserPrompt(todayISO, content))
	if err != nil {
		return nil, err
	}

	var payload listingPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode listing payload: %w", err)
	}

	candidates := make([]domain.ListingCandidate, 0, len(payload.JobPostings))
	for _, c := range payload.JobPostings {
		if err := c.Validate(); err != nil {
			log.Printf("Dropping invalid listing item from %s: %v", pageURL, err)
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// ExtractDetails fetches a posting page and extracts its detail fields.
func (g *LLM) ExtractDetails(ctx context.Context, pageURL string) (domain.PostingDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content, err := g.fetcher.FetchContent(ctx, pageURL)
	if err != nil {
		return domain.PostingDetails{}, fmt.Errorf("fetch posting page: %w", err)
	}

	raw, err := g.complete(ctx, metrics.KindDetailExtract, g.detailModel, pageURL,
		detailSystemPrompt, detailUserPrompt(content))
	if err != nil {
		return domain.PostingDetails{}, err
	}

	var details domain.PostingDetails
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return domain.PostingDetails{}, fmt.Errorf("decode detail payload: %w", err)
	}
	return details, nil
}

// complete runs one JSON-mode chat completion and records its metrics.
func (g *LLM) complete(ctx context.Context, kind metrics.CallKind, model, pageURL, system, user string) (string, error) {
	start := time.Now()

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})

	call := metrics.Call{
		Kind:     kind,
		Model:    model,
		URL:      pageURL,
		Duration: time.Since(start),
	}

	if err != nil {
		call.Err = err.Error()
		g.recorder.Record(call)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		call.Err = "no completion choices"
		g.recorder.Record(call)
		return "", fmt.Errorf("no completion choices returned")
	}

	call.Tokens = int(completion.Usage.TotalTokens)
	g.recorder.Record(call)

	return completion.Choices[0].Message.Content, nil
}

var _ Extractor = (*LLM)(nil)

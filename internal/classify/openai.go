package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/project-tktt/job-scout/internal/domain"
	"github.com/project-tktt/job-scout/internal/metrics"
)

const (
	defaultModel   = "gpt-4o"
	defaultTimeout = 20 * time.Second
)

const systemPrompt = `You are an expert career advisor. Your task is to determine if a given job title is relevant to the user's job preferences.
Respond with a JSON object containing a boolean field 'isRelevant' and a string field 'reasoning'. For example: {"isRelevant": true, "reasoning": "The job title aligns with preferred roles."}`

// OpenAIClassifier judges title relevance against a fixed preference
// profile using a JSON-mode chat completion.
type OpenAIClassifier struct {
	client   openai.Client
	recorder *metrics.Recorder
	profile  Profile
	model    string
	timeout  time.Duration
}

// NewOpenAIClassifier creates a classifier bound to one preference profile.
func NewOpenAIClassifier(apiKey string, profile Profile, recorder *metrics.Recorder, model string, timeout time.Duration) (*OpenAIClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key not set")
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &OpenAIClassifier{
		client:   openai.NewClient(option.WithAPIKey(apiKey)),
		recorder: recorder,
		profile:  profile,
		model:    model,
		timeout:  timeout,
	}, nil
}

// Classify asks the model whether the title matches the profile. A response
// that cannot be parsed as the expected shape degrades to a deterministic
// not-relevant verdict carrying the raw output, rather than an error.
func (c *OpenAIClassifier) Classify(ctx context.Context, title string) (domain.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(`Job Title: %q

User's Job Preferences:
%s

Is this job title relevant based on these preferences? Provide your answer in the specified JSON format.`,
		title, c.profile.PromptJSON())

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})

	call := metrics.Call{
		Kind:     metrics.KindClassify,
		Model:    c.model,
		Duration: time.Since(start),
	}

	if err != nil {
		call.Err = err.Error()
		c.recorder.Record(call)
		return domain.Verdict{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		call.Err = "no completion choices"
		c.recorder.Record(call)
		return domain.Verdict{}, fmt.Errorf("no completion choices returned")
	}

	call.Tokens = int(completion.Usage.TotalTokens)
	c.recorder.Record(call)

	raw := completion.Choices[0].Message.Content

	var verdict domain.Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		// Fail closed instead of propagating a parse error
		return domain.Verdict{
			IsRelevant: false,
			Reasoning:  "Failed to parse AI response. Raw: " + raw,
		}, nil
	}
	return verdict, nil
}

var _ Classifier = (*OpenAIClassifier)(nil)

package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	taskTypeClassification = "classification"
	taskTypeRegression     = "regression"

	parseTaskMaxTokens       = 1024
	selectionMaxTokens       = 50
	hyperparametersMaxTokens = 500
	interpretMaxTokens       = 1000

	parseTaskSystemPrompt = "You are an assistant that analyzes machine-learning task descriptions and answers with JSON only."

	parseTaskPromptFormat = `Analyze the machine-learning task below and return ONLY valid JSON.

User task: %q

Return JSON in exactly this shape:
{
    "task_type": "classification" or "regression",
    "data_description": "short description of the data mentioned in the request",
    "recommended_model": "one of the models listed below",
    "reasoning": "why this model was chosen (1-2 sentences)",
    "estimated_complexity": "low/medium/high",
    "key_features": ["important features if mentioned, otherwise []"],
    "target": "target variable if mentioned, otherwise null"
}

Available classification models: %s
Available regression models: %s

IMPORTANT:
- Tasks about categories/classes/kinds are classification
- Tasks about numeric values/prices/amounts are regression
- Return ONLY the JSON object, no markdown and no commentary`

	parseTaskRefinement = "REFINE:\nThe previous reply was not valid JSON. Return ONLY the JSON object, with no markdown fences and no commentary."

	selectModelPromptFormat = `Pick the single best model for the task.

Task: %s%s

Available models: %s

Answer with ONLY the model name as one word, for example: RandomForestClassifier`

	hyperparametersPromptFormat = `Suggest scikit-learn hyperparameters for a model.

Model: %s
Task: %s
%s

Return JSON with the hyperparameters, for example:
{"n_estimators": 100, "max_depth": 10, "random_state": 42}

Return ONLY JSON, no text`

	interpretPromptFormat = `Review the training results of a machine-learning model.

Model: %s
Metrics:
%s

Give a short analysis (3-4 sentences): overall quality, what the metrics
mean in plain words, signs of over- or underfitting, and practical
suggestions for improvement. Avoid heavy jargon.`

	recommendDatasetPromptFormat = `Pick the best dataset for training.

Task: %s - %s
Available datasets: %s

Answer with ONLY the dataset name as one word, for example: load_iris`
)

var (
	ErrNoCandidates      = errors.New("no candidates to choose from")
	ErrMalformedAnalysis = errors.New("llm returned malformed task analysis")

	requiredAnalysisFields = []string{"task_type", "recommended_model"}
)

// Completer is the slice of the chat client the advisor needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, wantJSON bool) (string, error)
}

// Advisor wraps a chat-completions client with the wizard's prompts and the
// parsing the raw replies need. Every selection helper degrades to a
// deterministic fallback instead of failing the wizard flow.
type Advisor struct {
	client               Completer
	classificationModels []string
	regressionModels     []string
}

func New(client Completer, classificationModels, regressionModels []string) *Advisor {
	return &Advisor{
		client:               client,
		classificationModels: classificationModels,
		regressionModels:     regressionModels,
	}
}

// TaskAnalysis is the structured guess produced for a free-text description.
type TaskAnalysis struct {
	TaskType            string   `json:"task_type"`
	DataDescription     string   `json:"data_description"`
	RecommendedModel    string   `json:"recommended_model"`
	Reasoning           string   `json:"reasoning"`
	EstimatedComplexity string   `json:"estimated_complexity"`
	KeyFeatures         []string `json:"key_features"`
	Target              string   `json:"target"`
}

// ParseTask turns a free-text task description into a TaskAnalysis. A reply
// that fails to decode is retried once with a refinement appended to the
// prompt; the second failure surfaces ErrMalformedAnalysis with the raw text.
func (a *Advisor) ParseTask(ctx context.Context, description string) (TaskAnalysis, error) {
	userPrompt := fmt.Sprintf(
		parseTaskPromptFormat,
		description,
		strings.Join(a.classificationModels, ", "),
		strings.Join(a.regressionModels, ", "),
	)

	var lastRaw string
	for attempt := 0; attempt < 2; attempt++ {
		prompt := userPrompt
		if attempt > 0 {
			prompt = prompt + "\n\n" + parseTaskRefinement
		}
		raw, err := a.client.Complete(ctx, parseTaskSystemPrompt, prompt, parseTaskMaxTokens, true)
		if err != nil {
			return TaskAnalysis{}, fmt.Errorf("parse task: %w", err)
		}
		lastRaw = raw

		analysis, decodeErr := decodeAnalysis(raw)
		if decodeErr != nil {
			continue
		}
		if analysis.TaskType != taskTypeClassification && analysis.TaskType != taskTypeRegression {
			analysis.TaskType = taskTypeClassification
		}
		return analysis, nil
	}
	return TaskAnalysis{}, fmt.Errorf("%w: %s", ErrMalformedAnalysis, truncate(lastRaw, 280))
}

func decodeAnalysis(raw string) (TaskAnalysis, error) {
	cleaned := StripMarkdownFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return TaskAnalysis{}, err
	}
	for _, required := range requiredAnalysisFields {
		value, present := fields[required]
		if !present || string(value) == "null" || string(value) == `""` {
			return TaskAnalysis{}, fmt.Errorf("missing required field %q", required)
		}
	}

	var analysis TaskAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return TaskAnalysis{}, err
	}
	return analysis, nil
}

// SelectModel picks one model out of candidates. Replies that are not in the
// candidate list, and transport failures, fall back to the first candidate.
func (a *Advisor) SelectModel(ctx context.Context, candidates []string, description string, dataInfo map[string]any) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	dataContext := ""
	if len(dataInfo) > 0 {
		encoded, err := json.Marshal(dataInfo)
		if err == nil {
			dataContext = "\nData info: " + string(encoded)
		}
	}
	userPrompt := fmt.Sprintf(selectModelPromptFormat, description, dataContext, strings.Join(candidates, ", "))

	reply, err := a.client.Complete(ctx, "", userPrompt, selectionMaxTokens, false)
	if err != nil {
		return candidates[0], nil
	}
	return pickFromCandidates(reply, candidates), nil
}

// SuggestHyperparameters asks for scikit-learn hyperparameters. Any failure
// yields the safe default of just a fixed random_state.
func (a *Advisor) SuggestHyperparameters(ctx context.Context, modelName, taskType string, dataSize int) map[string]any {
	sizeContext := "Data size: unknown"
	if dataSize > 0 {
		sizeContext = fmt.Sprintf("Data size: ~%d examples", dataSize)
	}
	userPrompt := fmt.Sprintf(hyperparametersPromptFormat, modelName, taskType, sizeContext)

	reply, err := a.client.Complete(ctx, "", userPrompt, hyperparametersMaxTokens, true)
	if err != nil {
		return map[string]any{"random_state": 42}
	}

	var parameters map[string]any
	if decodeErr := json.Unmarshal([]byte(StripMarkdownFences(reply)), &parameters); decodeErr != nil || parameters == nil {
		return map[string]any{"random_state": 42}
	}
	if _, present := parameters["random_state"]; !present {
		parameters["random_state"] = 42
	}
	return parameters
}

// InterpretResults produces a plain-language reading of training metrics.
func (a *Advisor) InterpretResults(ctx context.Context, metrics map[string]any, modelName string) (string, error) {
	encodedMetrics, marshalErr := json.MarshalIndent(metrics, "", "  ")
	if marshalErr != nil {
		return "", marshalErr
	}
	userPrompt := fmt.Sprintf(interpretPromptFormat, modelName, string(encodedMetrics))
	return a.client.Complete(ctx, "", userPrompt, interpretMaxTokens, false)
}

// RecommendDataset picks one dataset out of the available identifiers, with
// the same first-token and membership fallbacks as SelectModel.
func (a *Advisor) RecommendDataset(ctx context.Context, taskType, subtask string, available []string) (string, error) {
	if len(available) == 0 {
		return "", ErrNoCandidates
	}
	userPrompt := fmt.Sprintf(recommendDatasetPromptFormat, taskType, subtask, strings.Join(available, ", "))

	reply, err := a.client.Complete(ctx, "", userPrompt, selectionMaxTokens, false)
	if err != nil {
		return available[0], nil
	}
	return pickFromCandidates(reply, available), nil
}

func pickFromCandidates(reply string, candidates []string) string {
	tokens := strings.Fields(strings.TrimSpace(reply))
	if len(tokens) == 0 {
		return candidates[0]
	}
	first := tokens[0]
	for _, candidate := range candidates {
		if candidate == first {
			return candidate
		}
	}
	return candidates[0]
}

// StripMarkdownFences removes a ```json ... ``` (or plain ```) wrapper that
// models sometimes add around JSON replies.
func StripMarkdownFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if closing := strings.LastIndex(trimmed, "```"); closing >= 0 {
		trimmed = trimmed[:closing]
	}
	return strings.TrimSpace(trimmed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

package wellness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/equilix-backend/internal/flow"
)

// Invoker is the part of flow.Registry the typed helpers need.
type Invoker interface {
	Invoke(ctx context.Context, name string, input map[string]any, opts ...flow.InvokeOption) (*flow.Result, error)
}

type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type AnalyzeWellnessInput struct {
	Age      int     `json:"age"`
	Mood     float64 `json:"mood"`
	Thoughts string  `json:"thoughts"`
}

type AnalyzeWellnessOutput struct {
	Mood              string   `json:"mood"`
	Summary           string   `json:"summary"`
	Suggestions       []string `json:"suggestions"`
	RecommendedAction string   `json:"recommendedAction"`
}

type DetectEmotionInput struct {
	ImageDataURI string `json:"imageDataUri"`
}

type Exercise struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type DetectEmotionOutput struct {
	Emotion             string   `json:"emotion"`
	Confidence          float64  `json:"confidence"`
	Feedback            string   `json:"feedback"`
	Suggestions         []string `json:"suggestions"`
	RecommendedExercise Exercise `json:"recommendedExercise"`
}

// NoFace reports whether the output is the no-face sentinel.
func (o *DetectEmotionOutput) NoFace() bool {
	return o.Emotion == UnknownEmotion && o.Confidence == 0
}

type AIFriendInput struct {
	History      []Turn `json:"history,omitempty"`
	Message      string `json:"message"`
	IncludeAudio *bool  `json:"includeAudio,omitempty"`
	Voice        string `json:"voice,omitempty"`
}

type AIFriendOutput struct {
	Reply string `json:"reply"`
	// Audio is a data:audio/wav;base64 URI when speech was requested.
	Audio string `json:"audio,omitempty"`
}

type ChatInput struct {
	History []Turn `json:"history,omitempty"`
	Message string `json:"message"`
}

type ChatOutput struct {
	Response string `json:"response"`
}

type JournalInsightsInput struct {
	Entries []string `json:"entries"`
	Focus   string   `json:"focus,omitempty"`
}

type JournalInsightsOutput struct {
	Themes     []string `json:"themes"`
	Sentiment  string   `json:"sentiment"`
	Reflection string   `json:"reflection"`
	Prompts    []string `json:"prompts"`
}

type MoodLog struct {
	Date string  `json:"date"`
	Mood float64 `json:"mood"`
	Note string  `json:"note,omitempty"`
}

type MoodPatternsInput struct {
	Logs []MoodLog `json:"logs"`
}

type MoodPatternsOutput struct {
	Trend   string   `json:"trend"`
	Insight string   `json:"insight"`
	Tips    []string `json:"tips"`
}

type TextToSpeechInput struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

type TextToSpeechOutput struct {
	Audio string `json:"audio"`
}

func RunAnalyzeWellness(ctx context.Context, inv Invoker, in AnalyzeWellnessInput) (*AnalyzeWellnessOutput, error) {
	return call[AnalyzeWellnessOutput](ctx, inv, AnalyzeWellness, in)
}

func RunDetectEmotion(ctx context.Context, inv Invoker, in DetectEmotionInput) (*DetectEmotionOutput, error) {
	return call[DetectEmotionOutput](ctx, inv, DetectEmotion, in)
}

func RunAIFriend(ctx context.Context, inv Invoker, in AIFriendInput) (*AIFriendOutput, error) {
	return call[AIFriendOutput](ctx, inv, AIFriend, in)
}

func RunChat(ctx context.Context, inv Invoker, in ChatInput) (*ChatOutput, error) {
	return call[ChatOutput](ctx, inv, Chat, in)
}

func RunJournalInsights(ctx context.Context, inv Invoker, in JournalInsightsInput) (*JournalInsightsOutput, error) {
	return call[JournalInsightsOutput](ctx, inv, JournalInsights, in)
}

func RunMoodPatterns(ctx context.Context, inv Invoker, in MoodPatternsInput) (*MoodPatternsOutput, error) {
	return call[MoodPatternsOutput](ctx, inv, MoodPatterns, in)
}

func RunTextToSpeech(ctx context.Context, inv Invoker, in TextToSpeechInput) (*TextToSpeechOutput, error) {
	return call[TextToSpeechOutput](ctx, inv, TextToSpeech, in)
}

func call[Out any](ctx context.Context, inv Invoker, name string, in any) (*Out, error) {
	input, err := toMap(in)
	if err != nil {
		return nil, fmt.Errorf("%s: encode input: %w", name, err)
	}
	res, err := inv.Invoke(ctx, name, input)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(res.Output)
	if err != nil {
		return nil, fmt.Errorf("%s: encode output: %w", name, err)
	}
	var out Out
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%s: decode output: %w", name, err)
	}
	return &out, nil
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

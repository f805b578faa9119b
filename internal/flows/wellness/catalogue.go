// Package wellness registers the Equilix wellness flows.
package wellness

import (
	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/flow"
	"github.com/yungbote/equilix-backend/internal/schema"
)

const (
	AnalyzeWellness = "analyzeWellness"
	DetectEmotion   = "detectEmotion"
	AIFriend        = "aiFriend"
	Chat            = "chat"
	JournalInsights = "journalInsights"
	MoodPatterns    = "moodPatterns"
	TextToSpeech    = "textToSpeech"
)

// ChatFallback is returned by chat and aiFriend when the model says nothing.
const ChatFallback = "I'm here with you, but I couldn't find the right words just now. Could you tell me a little more?"

func ptr[T any](v T) *T { return &v }

func historyField() schema.Field {
	turn := schema.Object("", []schema.Field{
		schema.String("role", schema.Required(), schema.Enum("user", "model", "system")),
		schema.String("text", schema.Required(), schema.MaxLength(4000)),
	})
	return schema.Array("history", turn, schema.MaxItems(50),
		schema.Describe("Prior turns, oldest first."))
}

func suggestions(name string, minItems, maxItems int) schema.Field {
	opts := []schema.Option{schema.Required(), schema.MaxItems(maxItems)}
	if minItems > 0 {
		opts = append(opts, schema.MinItems(minItems))
	}
	return schema.Array(name, schema.String("", schema.NonBlank()), opts...)
}

// Definitions returns the wellness catalogue.
func Definitions() []flow.Definition {
	return []flow.Definition{
		{
			Name:        AnalyzeWellness,
			Description: "Summarize self-reported wellbeing and suggest next steps.",
			Input: schema.New("AnalyzeWellnessInput",
				schema.Integer("age", schema.Required(), schema.Min(13), schema.Max(120)),
				schema.Number("mood", schema.Required(), schema.Min(0), schema.Max(100)),
				schema.String("thoughts", schema.Required(), schema.NonBlank(), schema.MaxLength(4000)),
			),
			Output: schema.New("AnalyzeWellnessOutput",
				schema.String("mood", schema.Required(), schema.Enum("Positive", "Neutral", "Negative")),
				schema.String("summary", schema.Required(), schema.NonBlank()),
				suggestions("suggestions", 3, 5),
				schema.String("recommendedAction", schema.Required(), schema.NonBlank()),
			),
			Template: analyzeWellnessTemplate,
			Options:  flow.Options{Mode: engine.ModeJSON, Temperature: ptr(0.7)},
		},
		{
			Name:        DetectEmotion,
			Description: "Read the dominant emotion from a face photo.",
			Input: schema.New("DetectEmotionInput",
				schema.String("imageDataUri", schema.Required(), schema.DataURI("image/"),
					schema.Describe("Photo as a base64 data URI with an image MIME type.")),
			),
			Output: schema.New("DetectEmotionOutput",
				schema.String("emotion", schema.Required(), schema.NonBlank()),
				schema.Number("confidence", schema.Required(), schema.Min(0), schema.Max(1)),
				schema.String("feedback", schema.Required(), schema.NonBlank()),
				suggestions("suggestions", 0, 5),
				schema.Object("recommendedExercise", []schema.Field{
					schema.String("name", schema.Required()),
					schema.String("description", schema.Required()),
				}, schema.Required()),
				schema.Boolean("faceDetected"),
			),
			Template: detectEmotionTemplate,
			Options:  flow.Options{Mode: engine.ModeJSON, Temperature: ptr(0.2)},
			Coerce:   coerceEmotion,
		},
		{
			Name:        AIFriend,
			Description: "Conversational companion that replies in text and speech.",
			Input: schema.New("AIFriendInput",
				historyField(),
				schema.String("message", schema.Required(), schema.NonBlank(), schema.MaxLength(4000)),
				schema.Boolean("includeAudio", schema.Describe("Set false to skip speech synthesis.")),
				schema.String("voice", schema.MaxLength(64)),
			),
			Output: schema.New("AIFriendOutput",
				schema.String("reply", schema.Required(), schema.NonBlank()),
				schema.String("audio", schema.DataURI("audio/")),
			),
			Template: aiFriendTemplate,
			Options: flow.Options{
				Mode:        engine.ModeText,
				Temperature: ptr(0.8),
				VoiceField:  "voice",
				Speech: &flow.SpeechOptions{
					OutputField:  "audio",
					SkipField:    "includeAudio",
					Instructions: "Speak like a calm, caring friend.",
				},
			},
			Fallback:     flow.Fallback{Text: ChatFallback},
			HistoryField: "history",
		},
		{
			Name:        Chat,
			Description: "Wellness chat assistant.",
			Input: schema.New("ChatInput",
				historyField(),
				schema.String("message", schema.Required(), schema.NonBlank(), schema.MaxLength(4000)),
			),
			Output: schema.New("ChatOutput",
				schema.String("response", schema.Required(), schema.NonBlank()),
			),
			Template:     chatTemplate,
			Options:      flow.Options{Mode: engine.ModeText, Temperature: ptr(0.7)},
			Fallback:     flow.Fallback{Text: ChatFallback},
			HistoryField: "history",
		},
		{
			Name:        JournalInsights,
			Description: "Find themes and reflection prompts in journal entries.",
			Input: schema.New("JournalInsightsInput",
				schema.Array("entries", schema.String("", schema.NonBlank(), schema.MaxLength(4000)),
					schema.Required(), schema.MinItems(1), schema.MaxItems(50)),
				schema.String("focus", schema.MaxLength(200)),
			),
			Output: schema.New("JournalInsightsOutput",
				suggestions("themes", 1, 5),
				schema.String("sentiment", schema.Required(), schema.Enum("Positive", "Neutral", "Negative", "Mixed")),
				schema.String("reflection", schema.Required(), schema.NonBlank()),
				suggestions("prompts", 1, 5),
			),
			Template: journalInsightsTemplate,
			Options:  flow.Options{Mode: engine.ModeJSON, Temperature: ptr(0.6)},
		},
		{
			Name:        MoodPatterns,
			Description: "Describe the trend in a mood log.",
			Input: schema.New("MoodPatternsInput",
				schema.Array("logs", schema.Object("", []schema.Field{
					schema.String("date", schema.Required(), schema.NonBlank(), schema.MaxLength(32)),
					schema.Number("mood", schema.Required(), schema.Min(0), schema.Max(100)),
					schema.String("note", schema.MaxLength(500)),
				}), schema.Required(), schema.MinItems(1), schema.MaxItems(90)),
			),
			Output: schema.New("MoodPatternsOutput",
				schema.String("trend", schema.Required(), schema.Enum("improving", "stable", "declining", "mixed")),
				schema.String("insight", schema.Required(), schema.NonBlank()),
				suggestions("tips", 1, 5),
			),
			Template: moodPatternsTemplate,
			Options:  flow.Options{Mode: engine.ModeJSON, Temperature: ptr(0.4)},
		},
		{
			Name:        TextToSpeech,
			Description: "Speak text aloud as WAV audio.",
			Input: schema.New("TextToSpeechInput",
				schema.String("text", schema.Required(), schema.NonBlank(), schema.MaxLength(5000)),
				schema.String("voice", schema.MaxLength(64)),
			),
			Output: schema.New("TextToSpeechOutput",
				schema.String("audio", schema.Required(), schema.DataURI("audio/")),
			),
			Template: textToSpeechTemplate,
			Options:  flow.Options{Mode: engine.ModeAudio, VoiceField: "voice", Instructions: "Say warmly and calmly"},
		},
	}
}

// Register adds every wellness flow to reg.
func Register(reg *flow.Registry) error {
	for _, def := range Definitions() {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

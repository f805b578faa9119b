package wellness

import "strings"

// RecenterFeedback is used when no face is found and the model gave no feedback.
const RecenterFeedback = "I couldn't see a face clearly. Please center your face in the frame, in good light, and try again."

// UnknownEmotion is the sentinel emotion for photos without a detectable face.
const UnknownEmotion = "Unknown"

// coerceEmotion enforces the no-face output locally, whatever the model sent
// alongside the sentinel.
func coerceEmotion(out map[string]any) map[string]any {
	face, hasFace := out["faceDetected"].(bool)
	delete(out, "faceDetected")

	emotion, _ := out["emotion"].(string)
	emotion = strings.TrimSpace(emotion)
	noFace := (hasFace && !face) || emotion == "" || strings.EqualFold(emotion, UnknownEmotion)
	if !noFace {
		return out
	}

	feedback, _ := out["feedback"].(string)
	if strings.TrimSpace(feedback) == "" {
		feedback = RecenterFeedback
	}
	return map[string]any{
		"emotion":             UnknownEmotion,
		"confidence":          float64(0),
		"feedback":            feedback,
		"suggestions":         []any{},
		"recommendedExercise": map[string]any{"name": "", "description": ""},
	}
}

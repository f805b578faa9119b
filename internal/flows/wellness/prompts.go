package wellness

import "github.com/yungbote/equilix-backend/internal/prompt"

const coachSystem = `You are Equilix, a warm and practical wellness coach. You are not a clinician:
never diagnose, never prescribe medication, and if the person mentions self-harm or being
in danger, gently encourage them to contact local emergency services or a crisis line.
Keep language plain, kind and specific.`

var analyzeWellnessTemplate = prompt.MustNew(AnalyzeWellness, `Assess this person's current wellbeing.

Age: {{.age}}
Self-reported mood (0 = very low, 100 = excellent): {{.mood}}
What is on their mind:
{{.thoughts}}

Classify their overall mood as Positive, Neutral or Negative, write a two or three
sentence summary addressed to them, give between 3 and 5 concrete suggestions, and
name one recommended action they can take in the next hour.`, prompt.WithSystem(coachSystem))

var detectEmotionTemplate = prompt.MustNew(DetectEmotion, `Look at the face in this photo.
{{media .imageDataUri}}
Identify the dominant emotion, your confidence between 0 and 1, short supportive feedback,
a few suggestions, and one breathing or grounding exercise with a name and description
that fits the emotion.

If no human face is clearly visible, set faceDetected to false, emotion to "Unknown",
confidence to 0, suggestions to an empty list, the exercise name and description to
empty strings, and use feedback to ask the person to center their face in the frame
with good lighting.`, prompt.WithSystem(coachSystem))

var aiFriendTemplate = prompt.MustNew(AIFriend, `{{.message}}`, prompt.WithSystem(`You are a caring friend in the Equilix app.
Reply conversationally in two to four sentences, as if speaking aloud. Do not use lists,
markdown or emoji. Ask at most one gentle follow-up question.`))

var chatTemplate = prompt.MustNew(Chat, `{{.message}}`, prompt.WithSystem(coachSystem+`
Answer the latest message, using the earlier conversation for context.`))

var journalInsightsTemplate = prompt.MustNew(JournalInsights, `Here are recent journal entries, oldest first:
{{bullets .entries}}
{{with .focus}}
The person would especially like insight on: {{.}}
{{end}}
Identify up to five recurring themes, the overall sentiment (Positive, Neutral, Negative
or Mixed), write a short reflection addressed to them, and suggest up to five journaling
prompts for the coming days.`, prompt.WithSystem(coachSystem))

var moodPatternsTemplate = prompt.MustNew(MoodPatterns, `Mood log, oldest first (mood from 0 to 100):
{{range .logs}}- {{field "date" .}}: {{field "mood" .}}{{with field "note" .}} ({{.}}){{end}}
{{end}}
Describe the trend as improving, stable, declining or mixed, explain the pattern you see
in a short insight, and give between 1 and 5 practical tips.`, prompt.WithSystem(coachSystem))

var textToSpeechTemplate = prompt.MustNew(TextToSpeech, `{{.text}}`)

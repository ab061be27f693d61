// Package mood maps prompts and audio metadata to mood labels.
package mood

import "strings"

const (
	Happy     = "happy"
	Sad       = "sad"
	Calm      = "calm"
	Energetic = "energetic"
	Angry     = "angry"

	LanguageEnglish = "english"
	LanguageHindi   = "hindi"

	// energeticThreshold is the kbps-per-second score above which audio is energetic.
	energeticThreshold = 50
)

// keywords is scanned in order; the first substring match wins.
var keywords = []struct {
	keyword string
	mood    string
}{
	{"cheer me up", Happy},
	{"happy", Happy},
	{"sad", Sad},
	{"breakup", Sad},
	{"calm", Calm},
	{"energetic", Energetic},
	{"angry", Angry},
	{"relax", Calm},
}

// ClassifyPrompt returns the mood and language for a free-text prompt.
// Prompts with no known keyword are happy; language is english unless the
// prompt mentions hindi.
func ClassifyPrompt(prompt string) (mood, language string) {
	lower := strings.ToLower(prompt)

	mood = Happy
	for _, k := range keywords {
		if strings.Contains(lower, k.keyword) {
			mood = k.mood
			break
		}
	}

	language = LanguageEnglish
	if strings.Contains(lower, LanguageHindi) {
		language = LanguageHindi
	}
	return mood, language
}

// Metadata is the subset of container metadata the audio heuristic needs.
type Metadata struct {
	Duration float64 // seconds
	BitRate  int64   // bits per second
}

// ClassifyAudio scores (kbps / seconds) and calls anything above the
// threshold energetic. A zero duration with a positive bitrate scores as
// infinite; with no bitrate either it is calm.
func ClassifyAudio(meta Metadata) string {
	if meta.Duration <= 0 {
		if meta.BitRate > 0 {
			return Energetic
		}
		return Calm
	}

	score := (float64(meta.BitRate) / 1000) * (1 / meta.Duration)
	if score > energeticThreshold {
		return Energetic
	}
	return Calm
}

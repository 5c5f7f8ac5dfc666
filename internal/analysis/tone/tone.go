// Package tone picks a speaking tone for an agent reply so the browser can adjust rate and pitch.
package tone

import (
	"math"
	"strings"
	"unicode"
)

// Label 播放语气标签
type Label string

const (
	Neutral     Label = "neutral"
	Warm        Label = "warm"
	Encouraging Label = "encouraging"
	Curious     Label = "curious"
	Firm        Label = "firm"
)

// Decision is the chosen tone with speechSynthesis parameters. Rate and Pitch are centred on 1.
type Decision struct {
	Tone  Label   `json:"tone"`
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch"`
	Score int     `json:"score"`
}

var keywordBuckets = map[Label][]string{
	Warm: {
		"thank you", "thanks", "great to meet", "welcome", "glad", "appreciate", "nice to", "pleasure",
		"good to hear", "love that",
	},
	Encouraging: {
		"great", "excellent", "well done", "good point", "that's a strong", "impressive", "nice work",
		"take your time", "no rush", "don't worry",
	},
	Curious: {
		"tell me more", "walk me through", "how did", "why did", "what made", "could you explain",
		"can you give", "for example", "interesting", "what would",
	},
	Firm: {
		"be specific", "concretely", "exactly", "let's focus", "to be clear", "bottom line", "final offer",
		"i need", "we need", "that doesn't",
	},
}

// userBuckets detect how the user sounded; the agent answers nerves with encouragement and
// rambling with focus.
var userBuckets = map[Label][]string{
	Encouraging: {"nervous", "sorry", "i don't know", "not sure", "i guess", "maybe", "um", "uh"},
	Firm:        {"whatever", "anyway", "and so on", "etc", "blah"},
}

var baseVoice = map[Label]struct{ rate, pitch float64 }{
	Neutral:     {1.0, 1.0},
	Warm:        {0.95, 1.05},
	Encouraging: {1.0, 1.1},
	Curious:     {1.05, 1.05},
	Firm:        {0.92, 0.92},
}

// Analyze 根据用户上一句话与智能体回复推断播放语气。
func Analyze(userUtterance, agentUtterance string) Decision {
	best, score := scoreText(agentUtterance, keywordBuckets)
	// 回复本身没有明显语气时，按用户状态回应
	if score == 0 {
		best, score = scoreText(userUtterance, userBuckets)
	}
	if score == 0 {
		return decision(Neutral, 0)
	}
	return decision(best, score)
}

func decision(label Label, score int) Decision {
	voice := baseVoice[label]
	// 语气越明显偏移越大，最多 0.1
	shift := math.Min(0.1, float64(score)/30)
	rate, pitch := voice.rate, voice.pitch
	switch label {
	case Firm:
		rate -= shift / 2
		pitch -= shift / 2
	case Encouraging, Warm:
		pitch += shift / 2
	case Curious:
		rate += shift / 2
	}
	return Decision{Tone: label, Rate: round2(rate), Pitch: round2(pitch), Score: score}
}

func scoreText(text string, buckets map[Label][]string) (Label, int) {
	normalized := normalize(text)
	if normalized == "" {
		return Neutral, 0
	}

	padded := " " + normalized + " "
	scores := make(map[Label]int)
	for label, phrases := range buckets {
		for _, phrase := range phrases {
			if strings.Contains(padded, " "+phrase+" ") {
				scores[label] += 3
			}
		}
	}
	if exclamations := strings.Count(text, "!"); exclamations > 0 {
		scores[Encouraging] += exclamations
	}
	if strings.HasSuffix(strings.TrimSpace(text), "?") {
		scores[Curious]++
	}

	bestLabel, bestScore := Neutral, 0
	// 固定顺序遍历，平分时结果稳定
	for _, label := range []Label{Firm, Encouraging, Curious, Warm} {
		if s := scores[label]; s > bestScore {
			bestLabel, bestScore = label, s
		}
	}
	return bestLabel, bestScore
}

// normalize lower-cases text and turns punctuation into word breaks.
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Package feedback scores a practice transcript from the user's own answers.
package feedback

import (
	"slices"
	"strings"
	"unicode"

	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
)

// Signal is a category of phrasing the analyzer looks for.
type Signal string

const (
	Filler    Signal = "filler"
	Hedge     Signal = "hedge"
	Confident Signal = "confident"
)

// Report is the scoring result for one session.
type Report struct {
	Score      int            `json:"score"`
	Answers    int            `json:"answers"`
	Words      int            `json:"words"`
	AvgWords   int            `json:"avgWords"`
	Signals    map[Signal]int `json:"signals"`
	Highlights []string       `json:"highlights,omitempty"`
}

var phraseBuckets = map[Signal][]string{
	Filler: {
		"um", "uh", "erm", "uhm", "like", "basically", "literally", "you know", "i mean", "so yeah",
	},
	Hedge: {
		"i think", "i guess", "maybe", "probably", "sort of", "kind of", "i'm not sure", "not sure",
		"perhaps", "i suppose", "hopefully",
	},
	Confident: {
		"i led", "i built", "i delivered", "i decided", "i owned", "i launched", "i improved",
		"i achieved", "i designed", "i'm confident", "for example", "as a result", "specifically",
	},
}

// signalPhrases holds phraseBuckets split into words, longest phrase first, so a longer phrase
// claims its words before a shorter phrase inside it can.
var signalPhrases = func() map[Signal][][]string {
	out := make(map[Signal][][]string, len(phraseBuckets))
	for signal, phrases := range phraseBuckets {
		split := make([][]string, 0, len(phrases))
		for _, phrase := range phrases {
			split = append(split, strings.Fields(phrase))
		}
		slices.SortStableFunc(split, func(a, b []string) int { return len(b) - len(a) })
		out[signal] = split
	}
	return out
}()

const (
	baseScore     = 60
	maxFillerCost = 25
	maxHedgeCost  = 15
	maxConfidence = 15
)

// Analyze computes a deterministic 0-100 score. Agent messages and error replies are ignored.
func Analyze(messages []chat.Message) Report {
	report := Report{Signals: map[Signal]int{Filler: 0, Hedge: 0, Confident: 0}}

	for _, msg := range messages {
		if !msg.FromUser() {
			continue
		}
		tokens := tokenize(msg.Content)
		if len(tokens) == 0 {
			continue
		}
		report.Answers++
		report.Words += len(tokens)

		for signal, phrases := range signalPhrases {
			report.Signals[signal] += countSignal(tokens, phrases)
		}
	}

	if report.Answers == 0 {
		return report
	}
	report.AvgWords = report.Words / report.Answers

	score := baseScore
	// 回答长度：过短说明没有展开，过长则容易跑题
	switch {
	case report.AvgWords < 5:
		score -= 20
		report.Highlights = append(report.Highlights, "Answers were very short; expand with a concrete example.")
	case report.AvgWords < 15:
		score -= 5
	case report.AvgWords <= 120:
		score += 15
	default:
		score += 5
		report.Highlights = append(report.Highlights, "Answers ran long; lead with the key point.")
	}

	fillerRate := report.Signals[Filler] * 100 / report.Words
	fillerCost := min(fillerRate*2, maxFillerCost)
	score -= fillerCost
	if fillerCost >= 10 {
		report.Highlights = append(report.Highlights, "Frequent filler words; pause instead.")
	}

	score -= min(report.Signals[Hedge]*2, maxHedgeCost)
	if report.Signals[Hedge] >= 3 {
		report.Highlights = append(report.Highlights, "Hedging softened your claims.")
	}

	score += min(report.Signals[Confident]*3, maxConfidence)
	if report.Signals[Confident] > 0 {
		report.Highlights = append(report.Highlights, "Good use of concrete, first-person outcomes.")
	}

	report.Score = max(0, min(100, score))
	return report
}

// tokenize lowercases text and splits it on anything that is not a letter, digit or apostrophe.
func tokenize(text string) []string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.ReplaceAll(normalized, "’", "'")
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// countSignal counts phrase occurrences in tokens where no two matches share a word.
func countSignal(tokens []string, phrases [][]string) int {
	used := make([]bool, len(tokens))
	n := 0
	for _, phrase := range phrases {
		n += countMatches(tokens, phrase, used)
	}
	return n
}

// countMatches counts every position where phrase occurs as a whole-word sequence in tokens. When
// used is non-nil, words already claimed are skipped and matched words are claimed.
func countMatches(tokens, phrase []string, used []bool) int {
	n := 0
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, word := range phrase {
			if tokens[i+j] != word || (used != nil && used[i+j]) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		n++
		if used != nil {
			for j := range phrase {
				used[i+j] = true
			}
			i += len(phrase) - 1
		}
	}
	return n
}

package conversation

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Difficulty controls how quickly simulated agents respond.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// ErrInvalidDifficulty is returned for unknown difficulty names.
var ErrInvalidDifficulty = errors.New("invalid difficulty")

// DelayBand is the closed range a response delay is drawn from. The UI shows it to the user, so
// sampled delays never leave it.
type DelayBand struct {
	Min time.Duration
	Max time.Duration
}

// Contains reports whether d lies inside the band.
func (b DelayBand) Contains(d time.Duration) bool {
	return d >= b.Min && d <= b.Max
}

var delayBands = map[Difficulty]DelayBand{
	Easy:   {Min: 7000 * time.Millisecond, Max: 9000 * time.Millisecond},
	Medium: {Min: 4000 * time.Millisecond, Max: 6000 * time.Millisecond},
	Hard:   {Min: 2000 * time.Millisecond, Max: 4000 * time.Millisecond},
}

// Difficulties lists the supported levels from slowest to fastest.
func Difficulties() []Difficulty {
	return []Difficulty{Easy, Medium, Hard}
}

// ParseDifficulty normalises and validates a difficulty name.
func ParseDifficulty(raw string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := delayBands[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, raw)
	}
	return d, nil
}

// Band returns the delay band for d. Unknown levels fall back to medium.
func Band(d Difficulty) DelayBand {
	if band, ok := delayBands[d]; ok {
		return band
	}
	return delayBands[Medium]
}

// ResponseDelay samples a delay uniformly from the band of d.
func ResponseDelay(d Difficulty) time.Duration {
	band := Band(d)
	span := int64(band.Max - band.Min)
	return band.Min + time.Duration(rand.Int64N(span+1))
}

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseDelayStaysInBand(t *testing.T) {
	for _, d := range Difficulties() {
		band := Band(d)
		for i := 0; i < 500; i++ {
			delay := ResponseDelay(d)
			require.True(t, band.Contains(delay), "%s delay %s outside [%s, %s]", d, delay, band.Min, band.Max)
		}
	}
}

func TestResponseDelayOrdering(t *testing.T) {
	const samples = 200
	mean := func(d Difficulty) time.Duration {
		var total time.Duration
		for i := 0; i < samples; i++ {
			total += ResponseDelay(d)
		}
		return total / samples
	}

	easy, medium, hard := mean(Easy), mean(Medium), mean(Hard)
	assert.GreaterOrEqual(t, easy, medium)
	assert.GreaterOrEqual(t, medium, hard)
}

func TestBandsDoNotOverlap(t *testing.T) {
	assert.Greater(t, Band(Easy).Min, Band(Medium).Max)
	assert.GreaterOrEqual(t, Band(Medium).Min, Band(Hard).Max)
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty(" HARD ")
	require.NoError(t, err)
	assert.Equal(t, Hard, d)

	_, err = ParseDifficulty("extreme")
	assert.ErrorIs(t, err, ErrInvalidDifficulty)

	_, err = ParseDifficulty("")
	assert.ErrorIs(t, err, ErrInvalidDifficulty)
}

func TestBandUnknownFallsBackToMedium(t *testing.T) {
	assert.Equal(t, Band(Medium), Band("unknown"))
}

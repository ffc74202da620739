// Package scoring turns answer latency into points.
package scoring

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxPoints is awarded for an instant correct answer.
const MaxPoints = 200

// Places is the number of decimals kept on every score.
const Places = 3

var maxPoints = decimal.NewFromInt(MaxPoints)

// Score decays linearly from MaxPoints at submit == start to zero at the time limit.
// Answers after the limit earn nothing; a submit time before start counts as instant.
func Score(start, submit time.Time, limitSeconds int) decimal.Decimal {
	if limitSeconds <= 0 {
		return decimal.Zero
	}
	elapsed := submit.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > time.Duration(limitSeconds)*time.Second {
		return decimal.Zero
	}

	seconds := decimal.New(elapsed.Nanoseconds(), -9)
	ratio := seconds.Div(decimal.NewFromInt(int64(limitSeconds)))
	return maxPoints.Mul(decimal.NewFromInt(1).Sub(ratio)).Round(Places)
}

// Points is Score as a float, for payloads.
func Points(start, submit time.Time, limitSeconds int) float64 {
	return Score(start, submit, limitSeconds).InexactFloat64()
}

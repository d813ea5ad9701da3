// Package humanize infers how a customer is typing from message timing and
// maps that to a reply delay, so replies do not arrive with machine latency.
package humanize

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sushiaki/sorabot/pkg/utils"
)

type Pattern string

const (
	Copied    Pattern = "copied"
	Pensive   Pattern = "pensive"
	Impulsive Pattern = "impulsive"
	Normal    Pattern = "normal"
)

// DefaultInterArrival is used for the first message of a conversation.
const DefaultInterArrival = 5.0

const (
	pensiveDelay   = 2500 * time.Millisecond
	impulsiveDelay = 1200 * time.Millisecond
	defaultDelay   = 1800 * time.Millisecond
)

// Classify checks the predicates in order; the first match wins.
func Classify(interArrivalSeconds float64, messageLength int) Pattern {
	switch {
	case interArrivalSeconds < 1.2 && messageLength > 30:
		return Copied
	case interArrivalSeconds > 6 && messageLength < 10:
		return Pensive
	case interArrivalSeconds < 2:
		return Impulsive
	default:
		return Normal
	}
}

// ClassifyText classifies using the rune count of text.
func ClassifyText(interArrivalSeconds float64, text string) Pattern {
	return Classify(interArrivalSeconds, utf8.RuneCountInString(text))
}

// InterArrival returns the seconds between prev and now, or
// DefaultInterArrival when prev is unset.
func InterArrival(prev, now time.Time) float64 {
	if prev.IsZero() {
		return DefaultInterArrival
	}
	return now.Sub(prev).Seconds()
}

func Delay(p Pattern) time.Duration {
	switch p {
	case Pensive:
		return pensiveDelay
	case Impulsive:
		return impulsiveDelay
	case Copied, Normal:
		return defaultDelay
	default:
		return defaultDelay
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	return utils.SleepContext(ctx, d)
}

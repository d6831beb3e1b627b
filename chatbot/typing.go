package chatbot

import (
	"context"
	"strings"
	"time"
)

// DefaultTypingDelay is the delay between characters of the typing effect
const DefaultTypingDelay = 15 * time.Millisecond

// Frame is one state of a typing animation
type Frame struct {
	Text string
	Done bool
}

// Typewriter reveals an already received reply one character at a time
type Typewriter struct {
	Delay time.Duration

	// Sleep waits for d or until ctx is done. It defaults to a timer; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewTypewriter returns a Typewriter with the given per-character delay
func NewTypewriter(delay time.Duration) *Typewriter {
	return &Typewriter{Delay: delay, Sleep: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Type returns a channel of frames for text: an empty frame, one frame per rune with the text
// typed so far, then a Done frame with the full text. The channel is closed after the Done frame,
// or early if ctx is done.
func (t *Typewriter) Type(ctx context.Context, text string) <-chan Frame {
	wait := t.Sleep
	if wait == nil {
		wait = sleep
	}

	ch := make(chan Frame)
	go func() {
		defer close(ch)

		send := func(f Frame) bool {
			select {
			case ch <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(Frame{}) {
			return
		}

		var typed strings.Builder
		for _, r := range text {
			if err := wait(ctx, t.Delay); err != nil {
				return
			}
			typed.WriteRune(r)
			if !send(Frame{Text: typed.String()}) {
				return
			}
		}

		send(Frame{Text: typed.String(), Done: true})
	}()

	return ch
}

package transcript

import (
	"context"
	"log/slog"

	"github.com/voxprep/voxprep/internal/interview"
)

// CorrectingChannel decorates a speech channel so final utterances pass
// through the corrector before the session machine records them. Partial
// utterances are forwarded untouched; they are display-only and get
// replaced by the final anyway.
type CorrectingChannel struct {
	interview.SpeechChannel
	corrector *Corrector
	log       *slog.Logger
}

var _ interview.SpeechChannel = (*CorrectingChannel)(nil)

// WrapChannel wraps ch with corrector. A nil logger falls back to
// slog.Default.
func WrapChannel(ch interview.SpeechChannel, corrector *Corrector, log *slog.Logger) *CorrectingChannel {
	if log == nil {
		log = slog.Default()
	}
	return &CorrectingChannel{SpeechChannel: ch, corrector: corrector, log: log}
}

// Listen opens a recognition window on the wrapped channel and corrects
// final utterances in flight.
func (c *CorrectingChannel) Listen(ctx context.Context) <-chan interview.Utterance {
	in := c.SpeechChannel.Listen(ctx)
	out := make(chan interview.Utterance, 16)

	go func() {
		defer close(out)
		for u := range in {
			if u.Final {
				corrected, corrections := c.corrector.Correct(u.Text)
				for _, corr := range corrections {
					c.log.Debug("transcript correction",
						"original", corr.Original,
						"corrected", corr.Corrected,
						"confidence", corr.Confidence)
				}
				u.Text = corrected
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

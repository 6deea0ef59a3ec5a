// Package transmit paces crafted frames onto a sender.
package transmit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/ratelimit"

	"firestige.xyz/rocev2/internal/log"
	"firestige.xyz/rocev2/internal/metrics"
)

// Sender writes one frame to the wire or to a file.
type Sender interface {
	Name() string
	Send(data []byte) error
	Close() error
}

// Stats is the outcome of a Run.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Elapsed time.Duration
}

// Transmitter sends frames through a Sender at a fixed rate.
type Transmitter struct {
	sender  Sender
	limiter ratelimit.Limiter
	logger  log.Logger
}

// New returns a transmitter sending at most pps frames per second. pps <= 0
// sends as fast as the sender accepts.
func New(sender Sender, pps int, logger log.Logger) *Transmitter {
	if logger == nil {
		logger = log.GetLogger()
	}
	limiter := ratelimit.NewUnlimited()
	if pps > 0 {
		limiter = ratelimit.New(pps, ratelimit.WithoutSlack)
	}
	return &Transmitter{
		sender:  sender,
		limiter: limiter,
		logger:  logger.WithField("sender", sender.Name()),
	}
}

// Run sends the frames in order, count times over. count <= 0 repeats until
// ctx is cancelled. A failed frame is counted and skipped. Run returns
// ctx.Err() when cancelled before all rounds are sent.
func (t *Transmitter) Run(ctx context.Context, frames [][]byte, count int) (Stats, error) {
	var st Stats
	if len(frames) == 0 {
		return st, fmt.Errorf("no frames to send")
	}

	name := t.sender.Name()
	sent := metrics.FramesSentTotal.WithLabelValues(name)
	failed := metrics.SendErrorsTotal.WithLabelValues(name)
	latency := metrics.SendLatencySeconds.WithLabelValues(name)

	start := time.Now()

	for round := 0; count <= 0 || round < count; round++ {
		for i, f := range frames {
			if err := ctx.Err(); err != nil {
				st.Elapsed = time.Since(start)
				return st, err
			}
			t.limiter.Take()

			begin := time.Now()
			err := t.sender.Send(f)
			latency.Observe(time.Since(begin).Seconds())
			if err != nil {
				st.Failed++
				failed.Inc()
				t.logger.WithError(err).WithFields(map[string]interface{}{"round": round, "frame": i}).
					Warn("failed to send frame")
				continue
			}
			st.Sent++
			sent.Inc()
		}
	}

	st.Elapsed = time.Since(start)
	t.logger.WithFields(map[string]interface{}{
		"sent":    st.Sent,
		"failed":  st.Failed,
		"elapsed": st.Elapsed.String(),
	}).Info("transmit finished")
	return st, nil
}

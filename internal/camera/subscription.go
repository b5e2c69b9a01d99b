package camera

import (
	"context"
	"time"

	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/logger"
)

// fetchAIState reads the AI state of the configured channel
func (c *Client) fetchAIState(ctx context.Context) (AIState, error) {
	var state AIState
	if err := c.call(ctx, cmdGetAiState, channelParam{Channel: c.cfg.Channel}, &state); err != nil {
		return AIState{}, err
	}
	state.Channel = c.cfg.Channel
	return state, nil
}

// SubscribeEvents starts polling the AI state. Callbacks fire whenever any
// flag differs from the previous poll. The poller runs until
// UnsubscribeEvents or Disconnect; ctx only bounds the call itself.
func (c *Client) SubscribeEvents(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.subCancel != nil {
		return nil
	}

	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = conf.DefaultPollInterval
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	c.subCancel = cancel
	c.subDone = make(chan struct{})
	go c.poll(pollCtx, interval, c.subDone)

	c.log.Debug("subscribed to AI state", logger.Duration("interval", interval))
	return nil
}

// UnsubscribeEvents stops the poller and waits for it to exit.
func (c *Client) UnsubscribeEvents(ctx context.Context) error {
	c.subMu.Lock()
	cancel, done := c.subCancel, c.subDone
	c.subCancel, c.subDone = nil, nil
	c.subMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) poll(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		state, err := c.fetchAIState(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !failing {
				c.log.Warn("AI state poll failed", logger.Error(err))
				failing = true
			}
			continue
		}
		if failing {
			c.log.Info("AI state poll recovered")
			failing = false
		}

		c.mu.Lock()
		changed := state != c.aiState
		c.aiState = state
		var callbacks []Callback
		if changed {
			callbacks = make([]Callback, 0, len(c.callbacks))
			for _, fn := range c.callbacks {
				callbacks = append(callbacks, fn)
			}
		}
		c.mu.Unlock()

		for _, fn := range callbacks {
			fn()
		}
	}
}

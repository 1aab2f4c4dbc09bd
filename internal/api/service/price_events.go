package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coinpulse/coinpulse/pkg/slogx"
)

// PriceEventsChannel carries refresh triggers from the worker to API
// instances.
const PriceEventsChannel = "crypto-events"

const TriggerUpdate = "update"

type PriceEvent struct {
	Trigger string `json:"trigger"`
}

type Publisher interface {
	Publish(ctx context.Context, channel, payload string) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, fn func(ctx context.Context, payload string)) error
}

// HandleEvent refreshes the default market snapshot on an update trigger.
// Unknown payloads are logged and ignored. Logs go to the logger carried by
// ctx.
func (s *PriceService) HandleEvent(ctx context.Context, payload string) {
	l := slogx.FromContext(ctx)

	var ev PriceEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.Trigger != TriggerUpdate {
		l.Warn("ignoring price event", slog.String("payload", payload))
		return
	}
	if err := s.Refresh(ctx, DefaultCoinQuery); err != nil {
		l.Warn("price refresh failed", slog.Any("error", err))
		return
	}
	l.Debug("default price snapshot refreshed")
}

// PriceTicker publishes an update trigger every Interval until ctx ends.
type PriceTicker struct {
	Publisher Publisher
	Logger    *slog.Logger
	Interval  time.Duration
}

func (t *PriceTicker) Run(ctx context.Context) error {
	interval := t.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	payload, err := json.Marshal(PriceEvent{Trigger: TriggerUpdate})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.Logger.Info("price ticker started", "interval", interval, "channel", PriceEventsChannel)
	for {
		select {
		case <-ctx.Done():
			t.Logger.Info("price ticker stopped")
			return nil
		case <-ticker.C:
			if err := t.Publisher.Publish(ctx, PriceEventsChannel, string(payload)); err != nil {
				t.Logger.Error("failed to publish price event", "error", err)
				continue
			}
			t.Logger.Debug("published price event", "channel", PriceEventsChannel)
		}
	}
}

// Command watch tails the /ws/live stream of a running server and logs
// prices and fired alerts.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PairPulse/internal/domain/models"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/streamclient"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws/live", "live stream URL")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	l, err := applogger.New(&applogger.Config{Level: *level, Format: "console", Output: "stdout"})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := streamclient.New(streamclient.Config{
		URL:         *url,
		MinBackoff:  500 * time.Millisecond,
		MaxBackoff:  15 * time.Second,
		ReadTimeout: 90 * time.Second,
	}, l)

	err = c.Run(ctx, func(m streamclient.Message) {
		switch m.Type {
		case models.MessageInitial:
			var msg models.InitialMessage
			if err := m.Decode(&msg); err != nil {
				l.Warn("bad initial frame", applogger.Error(err))
				return
			}
			l.Info("initial", applogger.String("message", msg.Message), applogger.Any("prices", msg.Prices))
		case models.MessageUpdate:
			var msg models.UpdateMessage
			if err := m.Decode(&msg); err != nil {
				l.Warn("bad update frame", applogger.Error(err))
				return
			}
			l.Info("update", applogger.Any("prices", msg.Prices))
			for pair, a := range msg.Analytics {
				if a.ZScore.Current.Valid {
					l.Info("pair", applogger.String("pair", pair),
						applogger.Float64("hedge_ratio", a.HedgeRatio),
						applogger.Float64("zscore", a.ZScore.Current.Value))
				}
			}
		case models.MessageAlert:
			var msg models.AlertMessage
			if err := m.Decode(&msg); err != nil {
				l.Warn("bad alert frame", applogger.Error(err))
				return
			}
			l.Warn("alert", applogger.String("rule", msg.RuleName),
				applogger.String("metric", msg.Metric),
				applogger.Float64("value", msg.Value),
				applogger.String("message", msg.Message))
		default:
			l.Debug("frame", applogger.String("type", m.Type))
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("watch: %v", err)
	}
}

// Command farm runs the fogger control loop without the dashboard. The
// operator's mode arrives on {prefix}/mode and every cycle outcome is
// published to {prefix}/status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"gobot.io/x/gobot/v2"
	"gobot.io/x/gobot/v2/platforms/mqtt"

	"furitingoasis/fogger/bootstrap"
	"furitingoasis/fogger/classifier"
	"furitingoasis/fogger/config"
	"furitingoasis/fogger/control"
	"furitingoasis/fogger/history"
	foggermqtt "furitingoasis/fogger/mqtt"
)

var (
	onPrintf   = color.New(color.FgGreen, color.Bold).SprintfFunc()
	offPrintf  = color.New(color.FgCyan).SprintfFunc()
	warnPrintf = color.New(color.FgYellow).SprintfFunc()
)

// publishFunc matches mqtt.Adaptor.Publish.
type publishFunc func(topic string, payload []byte) bool

type farmController struct {
	ctrl    *control.Controller
	session *control.Session
	prefix  string
	publish publishFunc
	out     io.Writer
	logger  *slog.Logger
}

// onMode applies a mode command. Unknown payloads are logged and ignored so
// the loop keeps the previous mode.
func (f *farmController) onMode(payload []byte) {
	mode, err := control.ParseMode(strings.TrimSpace(string(payload)))
	if err != nil {
		f.logger.Warn("ignoring mode command", "payload", string(payload), "error", err)
		f.alert(fmt.Sprintf("Unknown fogger mode %q", string(payload)))
		return
	}
	if err := f.session.Select(mode); err != nil {
		f.logger.Warn("ignoring mode command", "mode", mode, "error", err)
		return
	}
	f.logger.Info("mode selected", "mode", mode)
}

func (f *farmController) tick(ctx context.Context) control.Summary {
	sum := f.ctrl.RunCycle(ctx, f.session.Mode())

	line := sum.String()
	if sum.Commanded {
		line = onPrintf("%s", line)
	} else {
		line = offPrintf("%s", line)
	}
	fmt.Fprintln(f.out, line)
	for _, w := range sum.Warnings() {
		fmt.Fprintln(f.out, warnPrintf("  ! %s", w))
	}
	f.RecordCycle(sum)
	return sum
}

// RecordCycle puts the cycle on the bus in the same shape the dashboard's
// publisher uses.
func (f *farmController) RecordCycle(sum control.Summary) {
	if f.publish == nil {
		return
	}
	msgs, err := foggermqtt.CycleMessages(f.prefix, sum)
	if err != nil {
		f.logger.Error(err.Error())
		return
	}
	for _, m := range msgs {
		f.publish(m.Topic, m.Payload)
	}
}

func (f *farmController) alert(text string) {
	if f.publish != nil {
		m := foggermqtt.AlertMessage(f.prefix, text)
		f.publish(m.Topic, m.Payload)
	}
}

func main() {
	configPath := flag.String("config", "", "JSON config file (defaults and FOGGER_* env apply)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	store, err := history.Open(cfg.HistoryDSN, logger)
	if err != nil {
		logger.Error("opening history", "dsn", cfg.HistoryDSN, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	retention, err := history.ScheduleRetention(store, cfg.HistoryRetention.Duration)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	defer retention.Stop()

	ctrl, err := bootstrap.Controller(cfg, logger, store)
	if err != nil {
		if errors.Is(err, classifier.ErrUnavailable) {
			logger.Error("ClassifierUnavailable: no fogger verdict can be produced", "model", cfg.ModelPath, "error", err)
		} else {
			logger.Error(err.Error())
		}
		os.Exit(1)
	}

	fc := &farmController{
		ctrl:    ctrl,
		session: &control.Session{},
		prefix:  cfg.MQTT.TopicPrefix,
		out:     os.Stdout,
		logger:  logger,
	}

	var connections []gobot.Connection
	var mqttAdaptor *mqtt.Adaptor
	if cfg.MQTT.BrokerURL != "" {
		if cfg.MQTT.Username != "" {
			mqttAdaptor = mqtt.NewAdaptorWithAuth(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password)
		} else {
			mqttAdaptor = mqtt.NewAdaptor(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID)
		}
		mqttAdaptor.SetAutoReconnect(true)
		connections = append(connections, mqttAdaptor)
		fc.publish = mqttAdaptor.Publish
	}

	work := func() {
		if mqttAdaptor != nil {
			mqttAdaptor.On(foggermqtt.JoinTopic(fc.prefix, "mode"), func(msg mqtt.Message) {
				fc.onMode(msg.Payload())
			})
		}
		fc.tick(context.Background())
		gobot.Every(cfg.RefreshInterval.Duration, func() {
			fc.tick(context.Background())
		})
	}

	farmBot := gobot.NewRobot("FoggerController", connections, work)

	logger.Info("starting fogger controller", "device", cfg.DeviceURL, "interval", cfg.RefreshInterval.Duration, "broker", cfg.MQTT.BrokerURL)
	if err := farmBot.Start(); err != nil {
		logger.Error("starting robot", "error", err)
		os.Exit(1)
	}
}

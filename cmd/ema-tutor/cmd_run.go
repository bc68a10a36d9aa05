package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	orchestration "github.com/koscakluka/ema-tutor/core"
	"github.com/koscakluka/ema-tutor/core/audio/miniaudio"
	"github.com/koscakluka/ema-tutor/core/conversations"
	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/transport/realtime"
)

const playbackDrainTimeout = 3 * time.Second

// RunCmd runs a single tutoring session
type RunCmd struct {
	Config   string            `short:"c" default:"ema-tutor.yaml" help:"Path to the YAML config file" type:"path"`
	URL      string            `help:"Realtime websocket endpoint, overrides the config file" env:"EMA_TUTOR_URL"`
	Scenario string            `required:"" help:"Scenario to practise"`
	Level    string            `default:"beginner" enum:"beginner,intermediate,advanced" help:"Learner proficiency level"`
	User     map[string]string `help:"Learner context passed to the tutor" placeholder:"KEY=VALUE"`
	Play     bool              `help:"Play tutor audio on the default output device"`
}

// Run executes the run command
func (c *RunCmd) Run(ctx *kong.Context, cli *CLI) error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.run(runCtx, newCLILogger(os.Stderr, cli.LogLevel), os.Stdout)
}

func (c *RunCmd) run(ctx context.Context, logger *slog.Logger, out io.Writer) error {
	restoreLogs := installLogBridge(logger.Handler())
	defer restoreLogs()

	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.URL != "" {
		cfg.Transport.URL = c.URL
	}
	if cfg.Transport.URL == "" {
		return errors.New("no realtime endpoint configured, set --url or transport.url")
	}

	opts := []realtime.DialerOption{
		realtime.WithHandshakeTimeout(cfg.Transport.HandshakeTimeout),
		realtime.WithReconnect(cfg.Transport.MaxReconnects, cfg.Transport.ReconnectBackoff),
	}
	for key, value := range cfg.Transport.Headers {
		opts = append(opts, realtime.WithHeader(key, value))
	}
	managerOpts := []orchestration.FlowManagerOption{
		orchestration.WithEventHandler(sessionPrinter(logger, out)),
	}

	if c.Play {
		speaker, err := miniaudio.NewSpeaker(cfg.Audio)
		if err != nil {
			return err
		}
		defer func() {
			if ctx.Err() == nil {
				drainCtx, cancel := context.WithTimeout(context.Background(), playbackDrainTimeout)
				_ = speaker.Drain(drainCtx)
				cancel()
			}
			if err := speaker.Close(); err != nil {
				logger.Warn("failed to close speaker", "error", err)
			}
		}()

		opts = append(opts, realtime.WithAudioSink(speaker.Play))
		managerOpts = append(managerOpts, orchestration.WithCallbacks(
			orchestration.WithTurnCompletedCallback(func(turn conversations.Turn) {
				if turn.CompletionReason == conversations.CompletionForced {
					speaker.Clear()
				}
			}),
		))
	}

	dialer, err := realtime.NewDialer(cfg.Transport.URL, opts...)
	if err != nil {
		return err
	}

	manager, err := orchestration.NewConversationFlowManager(dialer, cfg.Conversation, managerOpts...)
	if err != nil {
		return err
	}
	defer manager.Destroy()

	session, err := manager.StartSession(ctx, c.Scenario, conversations.ProficiencyLevel(c.Level), c.User)
	if err != nil {
		return err
	}
	logger.Info("session started", "session_id", session.ID, "scenario", session.ScenarioID)

	err = manager.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("stopping session")
		err = nil
	}
	if stopErr := manager.StopSession(); stopErr != nil {
		logger.Warn("session stopped with errors", "error", stopErr)
	}

	turns := manager.History()
	logger.Info("session finished", "session_id", session.ID, "turns", len(turns))
	return err
}

// sessionPrinter writes tutor transcripts to out and logs everything else.
func sessionPrinter(logger *slog.Logger, out io.Writer) orchestration.EventHandler {
	return func(event events.Event) {
		switch e := event.(type) {
		case events.SessionStateChanged:
			logger.Debug("session state changed", "from", string(e.From), "to", string(e.To))
		case events.AISpeechStarted:
			logger.Debug("tutor speaking", "response_id", e.ResponseID)
		case events.AISpeechEnded:
			logger.Debug("tutor finished speaking", "response_id", e.ResponseID, "duration", e.Duration.Round(time.Millisecond))
		case events.AITranscriptComplete:
			fmt.Fprintf(out, "tutor: %s\n", e.Text)
			if e.CompletionReason != conversations.CompletionNatural {
				logger.Warn("turn did not complete naturally", "response_id", e.ResponseID, "reason", string(e.CompletionReason))
			}
		case events.ConnectivityDegraded:
			logger.Warn("connection unstable", "disconnections", e.Count)
		case events.ConnectivityLost:
			logger.Error("connection lost", "reason", e.Reason)
		case events.Error:
			logger.Error("session error", "kind", string(e.ErrorKind), "detail", e.Detail)
		}
	}
}

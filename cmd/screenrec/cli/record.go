package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"screenrec/internal/config"
	"screenrec/internal/controller"
	"screenrec/internal/domain"
	"screenrec/internal/logging"
	"screenrec/internal/ports"
	"screenrec/internal/storage"

	"github.com/rs/zerolog"
)

var outputDirFlag string

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Start recording and serve the start/stop/pause/resume/mute/status control socket",
	RunE:  runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&outputDirFlag, "output-dir", "", "override the configured output directory")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log := logging.Init(cfg.LogLevel)

	if outputDirFlag != "" {
		cfg.Storage.OutputDir = outputDirFlag
	}

	storageMgr := storage.New()
	if cfg.Storage.OutputDir != "" {
		if err := storageMgr.SetOutputDirectory(cfg.Storage.OutputDir); err != nil {
			return fmt.Errorf("record: output directory: %w", err)
		}
	} else {
		storageMgr.DefaultDirectory()
	}

	sink := newEventSink(log)
	ctrl := controller.NewDefault(cfg, storageMgr, sink, log)

	path := socketPath()
	_ = os.Remove(path)
	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("record: listen on %s: %w", path, err)
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(path)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("record: start: %w", err)
	}
	log.Info().Str("socket", path).Msg("recording started; serving control socket")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	shutdown := make(chan struct{})
	var shutdownOnce sync.Once
	triggerShutdown := func() { shutdownOnce.Do(func() { close(shutdown) }) }

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				handleConn(ctx, ctrl, conn, triggerShutdown)
			}()
		}
	}()

	select {
	case <-sigCh:
		log.Warn().Msg("signal received; stopping session")
	case <-shutdown:
	}

	_ = listener.Close()
	if ctrl.State() != domain.SessionStateIdle {
		if err := ctrl.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("stop on shutdown failed")
		}
	}
	wg.Wait()
	return nil
}

func handleConn(ctx context.Context, ctrl *controller.Controller, conn net.Conn, triggerShutdown func()) {
	defer conn.Close()

	var req request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		writeResponse(conn, response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	var resp response
	switch req.Command {
	case "start":
		if err := ctrl.Start(ctx); err != nil {
			resp = response{Error: err.Error()}
			break
		}
		s := ctrl.Status()
		resp = response{Status: &s}
	case "stop":
		err := ctrl.Stop(ctx)
		s := ctrl.Status()
		resp = response{Status: &s}
		if err != nil {
			resp.Error = err.Error()
		}
		defer triggerShutdown()
	case "pause":
		if err := ctrl.Pause(); err != nil {
			resp = response{Error: err.Error()}
			break
		}
		s := ctrl.Status()
		resp = response{Status: &s}
	case "resume":
		if err := ctrl.Resume(); err != nil {
			resp = response{Error: err.Error()}
			break
		}
		s := ctrl.Status()
		resp = response{Status: &s}
	case "mute":
		ctrl.SetMuted(req.Muted)
		s := ctrl.Status()
		resp = response{Status: &s}
	case "status":
		s := ctrl.Status()
		resp = response{Status: &s}
	case "telemetry":
		snap := ctrl.TelemetrySnapshot()
		resp = response{Snap: &snap}
	default:
		resp = response{Error: fmt.Sprintf("unknown command %q", req.Command)}
	}

	writeResponse(conn, resp)
}

func writeResponse(conn net.Conn, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

// eventSink implements ports.EventSink by writing structured log lines;
// it is the headless stand-in for the GUI shell's status/error labels.
type eventSink struct {
	log zerolog.Logger
}

func newEventSink(log zerolog.Logger) ports.EventSink {
	return &eventSink{log: log}
}

func (e *eventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionReason) {
	e.log.Info().Str("state", string(state)).Str("reason", string(reason)).Msg("session state changed")
}

func (e *eventSink) TelemetryUpdated(snap domain.Snapshot) {
	e.log.Debug().Int64("framesEncoded", snap.FramesEncoded).Int64("framesDropped", snap.FramesDropped).Msg("telemetry")
}

func (e *eventSink) SessionError(code domain.ErrorCode, detail string) {
	e.log.Warn().Str("code", string(code)).Msg(detail)
}

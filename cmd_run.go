package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"voice-drive/calibration"
	"voice-drive/listener"
	"voice-drive/metrics"
)

type runFlags struct {
	device      int
	input       string
	realtime    bool
	recordDir   string
	metricsAddr string
	calibrate   bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.device, "device", "d", -2, "input device index from 'voice-drive devices' (default: audio.device)")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "replay a WAV file instead of capturing")
	cmd.Flags().BoolVar(&f.realtime, "realtime", true, "pace WAV replay to the recording's speed")
	cmd.Flags().StringVar(&f.recordDir, "record-dir", "", "save the captured audio as WAV in this directory (default: recording.dir)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default: metrics.listen_addr)")
}

func (a *app) runCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify sounds and drive the output lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.calibrate, "calibrate", false, "run the calibration wizard first, then keep classifying")

	return cmd
}

// session is everything a command needs once the pipeline runs.
type session struct {
	pipeline *pipeline
	metrics  *metrics.Metrics
	group    *errgroup.Group
	ctx      context.Context
	stop     context.CancelFunc
}

// startSession builds the pipeline and starts the listener, plus the metrics
// endpoint when configured. Cancelling ctx or ending the source stops all.
func (a *app) startSession(cmd *cobra.Command, flags *runFlags, mode listener.Mode) (*session, error) {
	cfg := a.cfg

	if flags.device != -2 {
		cfg.Audio.Device = flags.device
	}

	if flags.recordDir != "" {
		cfg.Recording.Dir = flags.recordDir
	}

	if flags.metricsAddr != "" {
		cfg.Metrics.ListenAddr = flags.metricsAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)

	var (
		met      *metrics.Metrics
		shutdown func(context.Context) error
		err      error
	)

	if cfg.Metrics.ListenAddr != "" {
		shutdown, err = metrics.InitProvider(ctx, version)
		if err != nil {
			stop()
			return nil, err
		}

		met, err = metrics.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			stop()
			return nil, err
		}
	}

	p, err := buildPipeline(cfg, pipelineOptions{
		fs:          a.fs,
		input:       flags.input,
		realtime:    flags.realtime,
		device:      cfg.Audio.Device,
		recordDir:   cfg.Recording.Dir,
		metrics:     met,
		initialMode: mode,
	})
	if err != nil {
		stop()
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)

	g.Go(func() error {
		defer cancel()
		return p.listener.ListenLoop(runCtx)
	})

	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		srv := &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Infof("serving metrics on %s/metrics", cfg.Metrics.ListenAddr)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-runCtx.Done()

			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()

			return errors.Join(srv.Shutdown(shutdownCtx), shutdown(shutdownCtx))
		})
	}

	return &session{
		pipeline: p,
		metrics:  met,
		group:    g,
		ctx:      runCtx,
		stop: func() {
			cancel()
			stop()
		},
	}, nil
}

func (a *app) run(cmd *cobra.Command, flags *runFlags) error {
	s, err := a.startSession(cmd, flags, listener.ModeClassifying)
	if err != nil {
		return err
	}
	defer s.stop()

	if flags.calibrate {
		s.group.Go(func() error {
			err := a.calibrateLive(s, cmd)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})
	}

	err = s.group.Wait()
	if err != nil {
		log.Errorf("error: %v", err)
	}

	return err
}

// calibrateLive runs the wizard against the running listener; classification
// resumes with the new thresholds once the session finishes.
func (a *app) calibrateLive(s *session, cmd *cobra.Command) error {
	progressC := make(chan calibration.Progress, 64)

	engine, err := calibration.New(a.cfg.CalibrationConfig(s.pipeline.store, forwardProgress(progressC)))
	if err != nil {
		return err
	}

	err = s.pipeline.listener.StartCalibration(engine)
	if err != nil {
		return err
	}

	w := &wizard{
		out:       cmd.OutOrStdout(),
		engine:    engine,
		progressC: progressC,
		countdown: a.cfg.Calibration.Countdown,
	}

	return w.run(s.ctx)
}

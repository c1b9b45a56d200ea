package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voice-drive/calibration"
	"voice-drive/config"
	"voice-drive/listener"
	"voice-drive/thresholds"
)

func (a *app) calibrateCmd() *cobra.Command {
	flags := &runFlags{}
	var out string

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Record the six calibration sounds and derive thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.startSession(cmd, flags, listener.ModeIdle)
			if err != nil {
				return err
			}
			defer s.stop()

			err = a.calibrateLive(s, cmd)
			s.stop()

			if waitErr := s.group.Wait(); waitErr != nil && err == nil {
				err = waitErr
			}

			if err != nil {
				return err
			}

			set := s.pipeline.store.Load()
			printThresholds(cmd.OutOrStdout(), set)

			if out == "" {
				return nil
			}

			cfg := *a.cfg
			cfg.Thresholds = set

			err = config.Save(a.fs, out, &cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nsaved to %s\n", out)

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the config with the calibrated thresholds to this file")

	return cmd
}

// forwardProgress hands engine updates to the wizard. Step results are always
// delivered; other updates are dropped when the wizard falls behind so the
// audio worker never blocks on them.
func forwardProgress(progressC chan<- calibration.Progress) func(calibration.Progress) {
	return func(p calibration.Progress) {
		if p.Result != nil {
			progressC <- p
			return
		}

		select {
		case progressC <- p:
		default:
		}
	}
}

type wizard struct {
	out       io.Writer
	engine    *calibration.Engine
	progressC <-chan calibration.Progress
	countdown time.Duration
}

func (w *wizard) run(ctx context.Context) error {
	fmt.Fprintf(w.out, "calibration: %d steps\n", len(calibration.Steps))

	for i, step := range calibration.Steps {
		fmt.Fprintf(w.out, "\n[%d/%d] %s\n", i+1, len(calibration.Steps), step.Prompt())

		if err := w.count(ctx); err != nil {
			w.engine.Abort()
			return err
		}

		if _, err := w.engine.StartStep(time.Now()); err != nil {
			return err
		}

		result, err := w.await(ctx)
		if err != nil {
			w.engine.Abort()
			return err
		}

		printResult(w.out, result)
	}

	if w.engine.State() != calibration.Finished {
		return fmt.Errorf("calibration ended in state %s", w.engine.State())
	}

	return nil
}

func (w *wizard) count(ctx context.Context) error {
	for left := w.countdown; left > 0; left -= time.Second {
		fmt.Fprintf(w.out, "  %d...\n", int((left+time.Second-1)/time.Second))

		wait := time.Second
		if left < wait {
			wait = left
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	fmt.Fprintln(w.out, "  recording")

	return nil
}

func (w *wizard) await(ctx context.Context) (*calibration.StepResult, error) {
	lastPercent := -1

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case p := <-w.progressC:
			if p.Result != nil {
				fmt.Fprintf(w.out, "\r  %s 100%%\n", bar(100))
				return p.Result, nil
			}

			if p.State == calibration.Aborted {
				return nil, errors.New("calibration aborted")
			}

			if p.State == calibration.Recording && p.Percent/10 != lastPercent/10 {
				lastPercent = p.Percent
				fmt.Fprintf(w.out, "\r  %s %3d%%", bar(p.Percent), p.Percent)
			}
		}
	}
}

func bar(percent int) string {
	n := percent / 5
	return "[" + strings.Repeat("#", n) + strings.Repeat(" ", 20-n) + "]"
}

func printResult(out io.Writer, r *calibration.StepResult) {
	fmt.Fprintf(out, "  %s: %d samples (%d used), volume mean %.0f peak %.0f, pitch %.0f, vowel ratio %.2f, fricative ratio %.2f, zcr %.3f, centroid %.0f Hz\n",
		r.Step, r.Samples, r.Accepted, r.MeanVolume, r.PeakVolume, r.MedianPitch,
		r.MedianVowelRatio, r.MedianFricativeRatio, r.MeanZCR, r.MeanCentroid)

	if r.TimedOut {
		fmt.Fprintln(out, "  warning: no audio arrived before the step timed out")
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", warning)
	}
}

func printThresholds(out io.Writer, s thresholds.Set) {
	fmt.Fprintln(out, "\nthresholds:")
	fmt.Fprintf(out, "  silence_volume:           %.1f\n", s.SilenceVolume)
	fmt.Fprintf(out, "  trigger_volume:           %.1f\n", s.TriggerVolume)
	fmt.Fprintf(out, "  pitch_gate:               %.1f\n", s.PitchGate)
	fmt.Fprintf(out, "  ratio_vowel:              %.3f\n", s.RatioVowel)
	fmt.Fprintf(out, "  ratio_fricative:          %.3f\n", s.RatioFricative)
	fmt.Fprintf(out, "  zcr_gate:                 %.3f\n", s.ZCRGate)
	fmt.Fprintf(out, "  vowel_centroid_split:     %.1f\n", s.VowelCentroidSplit)
	fmt.Fprintf(out, "  fricative_centroid_split: %.1f\n", s.FricativeCentroidSplit)
}

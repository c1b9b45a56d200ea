package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"voice-drive/config"
)

// configEnv names the environment variable read when --config is not given.
const configEnv = "VOICE_DRIVE_CONFIG"

type app struct {
	fs       afero.Fs
	cfgFile  string
	logLevel string
	cfg      *config.Config
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}

	rootCmd := &cobra.Command{
		Use:   "voice-drive",
		Short: "Drive games and robots with vowels, hisses and claps",
		Long: `voice-drive listens to a microphone and turns non-verbal sounds into
controller lines: a dark vowel (OOO) and a bright vowel (EEE) steer, SHHH
brakes, SSSS accelerates and a clap fires a momentary trigger.

Run 'voice-drive calibrate' once to fit the thresholds to your voice and room.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", os.Getenv(configEnv), "config file (default: built-in defaults, or $"+configEnv+")")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(a.runCmd())
	rootCmd.AddCommand(a.calibrateCmd())
	rootCmd.AddCommand(a.devicesCmd())

	return rootCmd
}

func (a *app) loadConfig() error {
	if a.cfgFile == "" {
		a.cfg = config.Default()
	} else {
		cfg, err := config.Load(a.fs, a.cfgFile)
		if err != nil {
			return err
		}

		a.cfg = cfg
	}

	level := a.cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	return nil
}

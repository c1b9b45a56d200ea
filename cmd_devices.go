package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voice-drive/audio_source"
)

func (a *app) devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio_source.ListDevices()
			if err != nil {
				return err
			}

			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no input devices found")
				return nil
			}

			for _, d := range devices {
				marker := ""
				if d.Default {
					marker = "  (default)"
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s [%s, %d ch, %.0f Hz]%s\n",
					d.Index, d.Name, d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate, marker)
			}

			return nil
		},
	}
}

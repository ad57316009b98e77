package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start a new recording on the running record process",
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := sendCommand(request{Command: "start"})
				if err != nil {
					return err
				}
				printStatus(*resp.Status)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the active recording and finalize the output file",
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := sendCommand(request{Command: "stop"})
				if resp.Status != nil {
					printStatus(*resp.Status)
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "pause",
			Short: "Pause the active recording",
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := sendCommand(request{Command: "pause"})
				if err != nil {
					return err
				}
				printStatus(*resp.Status)
				return nil
			},
		},
		&cobra.Command{
			Use:   "resume",
			Short: "Resume a paused recording",
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := sendCommand(request{Command: "resume"})
				if err != nil {
					return err
				}
				printStatus(*resp.Status)
				return nil
			},
		},
		newMuteCmd(),
		&cobra.Command{
			Use:   "status",
			Short: "Print the current session state",
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := sendCommand(request{Command: "status"})
				if err != nil {
					return err
				}
				printStatus(*resp.Status)
				return nil
			},
		},
		&cobra.Command{
			Use:   "telemetry",
			Short: "Print the current telemetry counters",
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := sendCommand(request{Command: "telemetry"})
				if err != nil {
					return err
				}
				snap := resp.Snap
				fmt.Printf("captured=%d encoded=%d dropped=%d duplicate=%d audio=%d queueDepth=%d tier=%s onAC=%t\n",
					snap.FramesCaptured, snap.FramesEncoded, snap.FramesDropped, snap.FramesDuplicate,
					snap.AudioMuxed, snap.QueueDepth, snap.EncoderTier, snap.OnACPower)
				return nil
			},
		},
	)
}

func newMuteCmd() *cobra.Command {
	var unmute bool
	cmd := &cobra.Command{
		Use:   "mute",
		Short: "Mute (or with --unmute, unmute) the microphone",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendCommand(request{Command: "mute", Muted: !unmute})
			if err != nil {
				return err
			}
			printStatus(*resp.Status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unmute, "unmute", false, "unmute instead of mute")
	return cmd
}

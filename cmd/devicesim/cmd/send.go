package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"safetywatch/internal/ingest"
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("device", "ESP32-001", "Device identifier")
	sendCmd.Flags().Float64("heart-rate", 0, "Heart rate in bpm")
	sendCmd.Flags().Float64("temperature", 0, "Body temperature in Celsius")
	sendCmd.Flags().Float64("gas", 0, "Gas level in ppm")
	sendCmd.Flags().Bool("fall", false, "Report a detected fall")
	sendCmd.Flags().Bool("cbor", false, "Send the payload as CBOR")
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single reading",
	Long: `Send one telemetry reading for a device. Measurements that are not
given on the command line are left out of the payload.

Examples:
  devicesim send --device ESP32-002 --heart-rate 132
  devicesim send --device ESP32-003 --gas 410 --cbor`,
	RunE: runSend,
}

func runSend(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	device, _ := flags.GetString("device")
	asCBOR, _ := flags.GetBool("cbor")

	p := ingest.Payload{DeviceID: device}
	if flags.Changed("heart-rate") {
		v, _ := flags.GetFloat64("heart-rate")
		p.HeartRate = &v
	}
	if flags.Changed("temperature") {
		v, _ := flags.GetFloat64("temperature")
		p.BodyTemperature = &v
	}
	if flags.Changed("gas") {
		v, _ := flags.GetFloat64("gas")
		p.GasLevel = &v
	}
	if flags.Changed("fall") {
		v, _ := flags.GetBool("fall")
		p.FallDetected = &v
	}

	if err := newClient(cmd).Submit(cmd.Context(), p, asCBOR); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s reading recorded for %s\n", okFmt("ok"), keyFmt(device))
	return nil
}

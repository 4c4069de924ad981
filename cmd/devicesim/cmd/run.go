package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"safetywatch/internal/simclient"
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSlice("device", []string{"ESP32-001", "ESP32-002", "ESP32-003", "ESP32-004"}, "Devices to simulate")
	runCmd.Flags().Duration("interval", 5*time.Second, "Delay between rounds")
	runCmd.Flags().Int("rounds", 0, "Stop after this many rounds (0 runs until interrupted)")
	runCmd.Flags().Bool("cbor", false, "Send payloads as CBOR")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stream synthetic readings for several devices",
	Long: `Send one reading per device every interval until interrupted. Roughly one
reading in twenty is abnormal so alerts can be observed.

Examples:
  devicesim run
  devicesim run --device ESP32-001 --interval 1s --rounds 30`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	devices, _ := flags.GetStringSlice("device")
	interval, _ := flags.GetDuration("interval")
	rounds, _ := flags.GetInt("rounds")
	asCBOR, _ := flags.GetBool("cbor")
	if len(devices) == 0 {
		return errors.New("at least one --device is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newClient(cmd)
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(len(devices))))
	out := cmd.OutOrStdout()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for round := 1; rounds == 0 || round <= rounds; round++ {
		for _, device := range devices {
			p := simclient.Reading(rng, device)
			err := client.Submit(ctx, p, asCBOR)
			switch {
			case err == nil:
				fmt.Fprintf(out, "%s %s hr=%.0f temp=%.1f gas=%.1f fall=%t\n",
					okFmt("sent"), keyFmt(device), *p.HeartRate, *p.BodyTemperature, *p.GasLevel, *p.FallDetected)
			case errors.Is(err, context.Canceled):
				return nil
			default:
				fmt.Fprintf(out, "%s %s %v\n", warnFmt("fail"), keyFmt(device), err)
			}
		}

		if rounds != 0 && round == rounds {
			break
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, dimFmt("stopped"))
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

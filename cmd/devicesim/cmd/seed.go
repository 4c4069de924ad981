package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"safetywatch/internal/simclient"
)

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("login", envOr("SAFETYWATCH_ADMIN_LOGIN", ""), "Admin login (env: SAFETYWATCH_ADMIN_LOGIN)")
	seedCmd.Flags().String("password", envOr("SAFETYWATCH_ADMIN_PASSWORD", ""), "Admin password (env: SAFETYWATCH_ADMIN_PASSWORD)")
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the demo roster and print its credentials",
	Long: `Log in as an admin, seed the demo supervisors and workers, and print the
one-time passwords the server generated. Running it again resets them.`,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, _ []string) error {
	login, _ := cmd.Flags().GetString("login")
	password, _ := cmd.Flags().GetString("password")
	if login == "" || password == "" {
		return fmt.Errorf("--login and --password are required")
	}

	client := newClient(cmd)
	token, err := client.Login(cmd.Context(), login, password)
	if err != nil {
		return err
	}
	res, err := client.Seed(cmd.Context(), token)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, okFmt(res.Message))
	printCredentials(out, "Supervisors", res.Credentials.Supervisors)
	printCredentials(out, "Workers", res.Credentials.Workers)
	for _, d := range res.Details {
		fmt.Fprintln(out, dimFmt("  "+d))
	}
	return nil
}

func printCredentials(out io.Writer, title string, creds []simclient.Credential) {
	fmt.Fprintf(out, "\n%s\n", keyFmt(title))
	for _, c := range creds {
		fmt.Fprintf(out, "  %-8s %-18s %s\n", c.UserID, c.Password, dimFmt(c.Name))
	}
}

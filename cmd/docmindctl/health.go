package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

// healthResponse matches internal/http HealthResponse.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func newHealthCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check docmind daemon health",
		Long: `Query GET /health of a running daemon.

Examples:
  docmindctl health
  docmindctl health --server http://docmind:9090`,
		Args: cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := fmt.Sprintf("%s/health", serverURL)
			client := &http.Client{Timeout: 5 * time.Second}

			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", url, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}
			var health healthResponse
			if err := json.Unmarshal(body, &health); err != nil {
				return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", health.Status)
			fmt.Fprintf(out, "Server URL: %s\n", serverURL)
			names := make([]string, 0, len(health.Checks))
			for name := range health.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %s: %s\n", name, health.Checks[name])
			}

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server is %s", health.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:9090", "docmind server URL")
	return cmd
}

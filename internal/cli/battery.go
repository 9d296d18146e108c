package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"battery-passport/internal/domain"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <battery-id>",
		Short: "Show the owner status of a battery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := root.client()
			defer client.Close()

			status, err := client.FetchStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if root.JSON {
				return writeJSON(w, status)
			}
			fmt.Fprintf(w, "Battery:     %s\n", status.BatteryID)
			fmt.Fprintf(w, "Status:      %s\n", status.Status)
			fmt.Fprintf(w, "Voltage:     %.2f V\n", status.Voltage)
			fmt.Fprintf(w, "Capacity:    %.2f kWh\n", status.Capacity)
			fmt.Fprintf(w, "SOH:         %.1f %%\n", status.SOHPercent)
			if status.Temperature != nil {
				fmt.Fprintf(w, "Temperature: %.1f °C\n", *status.Temperature)
			}
			return nil
		},
	}
}

func newDetailsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "details <battery-id>",
		Short: "Show the garage record of a battery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := root.client()
			defer client.Close()

			details, err := client.FetchDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if root.JSON {
				return writeJSON(w, details)
			}
			fmt.Fprintf(w, "Battery:     %s\n", details.BatteryID)
			fmt.Fprintf(w, "Voltage:     %.2f V\n", details.Voltage)
			fmt.Fprintf(w, "Capacity:    %.2f kWh\n", details.Capacity)
			fmt.Fprintf(w, "Temperature: %.1f °C\n", details.Temperature)
			if details.SOHPercent != nil {
				fmt.Fprintf(w, "SOH:         %.1f %%\n", *details.SOHPercent)
			}
			if details.BatteryStatus != "" {
				fmt.Fprintf(w, "Status:      %s\n", details.BatteryStatus)
			}
			if details.CreatedAt != "" {
				fmt.Fprintf(w, "Registered:  %s\n", details.CreatedAt)
			}
			return nil
		},
	}
}

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	var marketID string

	evaluateCmd := &cobra.Command{
		Use:   "evaluate <battery-id>",
		Short: "Score end-of-life options for a battery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			market := strings.TrimSpace(marketID)
			if market == "" {
				market = root.settings.MarketID
			}

			client := root.client()
			defer client.Close()

			scores, err := client.Evaluate(cmd.Context(), domain.EvaluationRequest{ID: args[0], MarketID: market})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if root.JSON {
				return writeJSON(w, scores)
			}

			names := make([]string, 0, len(scores))
			for name := range scores {
				names = append(names, name)
			}
			sort.Slice(names, func(i, j int) bool {
				if scores[names[i]] != scores[names[j]] {
					return scores[names[i]] > scores[names[j]]
				}
				return names[i] < names[j]
			})
			for _, name := range names {
				fmt.Fprintf(w, "%-16s %.3f\n", name, scores[name])
			}
			if best, _, ok := scores.Best(); ok {
				fmt.Fprintf(w, "Recommended: %s\n", best)
			}
			return nil
		},
	}
	evaluateCmd.Flags().StringVarP(&marketID, "market", "m", "", "Market context id (defaults to settings)")

	return evaluateCmd
}

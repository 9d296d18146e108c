package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"battery-passport/internal/diagnostics"
	"battery-passport/internal/domain"
)

// errChecksFailed makes the process exit non-zero after printing the report.
var errChecksFailed = errors.New("one or more checks failed")

func newDiagnosticsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Check ffmpeg, the camera, formats, API address and data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := diagnostics.NewChecker().Run(root.settings)
			if err := printReport(cmd, root.JSON, report); err != nil {
				return err
			}
			if report.HasFailures {
				return errChecksFailed
			}
			return nil
		},
	}
}

func printReport(cmd *cobra.Command, asJSON bool, report domain.DiagnosticReport) error {
	w := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(w, report)
	}

	for _, item := range report.Items {
		fmt.Fprintf(w, "[%s] %-16s %s\n", strings.ToUpper(string(item.Status)), item.Name, item.Message)
		if item.Status == domain.DiagnosticStatusFail && item.Hint != "" {
			fmt.Fprintf(w, "       hint: %s\n", item.Hint)
		}
	}
	if failed := report.Failures(); len(failed) > 0 {
		fmt.Fprintf(w, "%d of %d checks failed\n", len(failed), len(report.Items))
	}
	return nil
}

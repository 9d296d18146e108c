package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"battery-passport/internal/capture"
	"battery-passport/internal/domain"
	"battery-passport/internal/qr"
	"battery-passport/internal/scan"
)

type scanOptions struct {
	Label         string
	Device        string
	InputFormat   string
	Images        []string
	Timeout       time.Duration
	Lookup        string
	FrameInterval time.Duration
}

// scanOutput is the --json result of a scan.
type scanOutput struct {
	Label   string `json:"label,omitempty"`
	Value   string `json:"value"`
	Lookup  string `json:"lookup,omitempty"`
	Battery any    `json:"battery,omitempty"`
}

func newScanCmd(root *rootOptions) *cobra.Command {
	opts := &scanOptions{}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one battery QR code",
		Long:  "Open the camera, or loop over image files, until a QR code is read. The decoded battery id is printed on stdout.",
		Example: `
# Scan with the configured camera and print the owner status
passport-scan scan --lookup status

# Decode a QR code from a photo
passport-scan scan --image label.png --json
		`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, root, opts)
		},
	}

	scanCmd.Flags().StringVarP(&opts.Label, "label", "l", "battery", "Label attached to the scan session")
	scanCmd.Flags().StringVarP(&opts.Device, "device", "d", "", "Camera device (defaults to settings)")
	scanCmd.Flags().StringVar(&opts.InputFormat, "input-format", "", "ffmpeg input format (defaults to the platform one)")
	scanCmd.Flags().StringSliceVarP(&opts.Images, "image", "i", nil, "Scan image files instead of the camera, separate by comma if multiple")
	scanCmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", 0, "Give up after this long, 0 waits until interrupted")
	scanCmd.Flags().StringVar(&opts.Lookup, "lookup", "", "Look the battery up after scanning: status or details")
	scanCmd.Flags().DurationVar(&opts.FrameInterval, "frame-interval", scan.DefaultFrameInterval, "Delay between decode attempts")

	return scanCmd
}

func runScan(cmd *cobra.Command, root *rootOptions, opts *scanOptions) error {
	lookup := strings.ToLower(strings.TrimSpace(opts.Lookup))
	if lookup != "" && lookup != "status" && lookup != "details" {
		return fmt.Errorf("unknown lookup %q, want status or details", opts.Lookup)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan string, 1)
	failures := make(chan string, 1)

	scanner := scan.New(scan.Options{
		Camera:        cameraFor(root, opts),
		NewDetector:   qr.NewDetectorFactory(root.settings.Formats),
		FrameInterval: opts.FrameInterval,
		Logger:        root.logger,
		OnEvent: func(event scan.Event) {
			if event.Type == scan.EventTypeError && event.State == domain.ScanStateEnded {
				select {
				case failures <- event.Message:
				default:
				}
			}
		},
	})
	defer func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = scanner.Shutdown(waitCtx)
	}()

	if _, err := scanner.Start(opts.Label, func(value string) {
		select {
		case results <- value:
		default:
		}
	}); err != nil {
		return errors.New(scan.UserMessage(err))
	}

	var value string
	select {
	case value = <-results:
	case message := <-failures:
		return errors.New(message)
	case <-ctx.Done():
		scanner.Stop()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("no QR code read within %s", opts.Timeout)
		}
		return ctx.Err()
	}

	root.logger.Info().Str("label", opts.Label).Str("value", value).Msg("QR code read")

	out := scanOutput{Label: strings.TrimSpace(opts.Label), Value: value, Lookup: lookup}
	if lookup != "" {
		battery, err := lookupBattery(ctx, root, lookup, value)
		if err != nil {
			return err
		}
		out.Battery = battery
	}

	w := cmd.OutOrStdout()
	if root.JSON {
		return writeJSON(w, out)
	}
	fmt.Fprintln(w, value)
	if out.Battery != nil {
		return writeJSON(w, out.Battery)
	}
	return nil
}

// cameraFor picks image files when given, the ffmpeg camera otherwise.
func cameraFor(root *rootOptions, opts *scanOptions) scan.Camera {
	if len(opts.Images) > 0 {
		return capture.NewStillCamera(opts.Images...)
	}

	device := root.settings.CameraDevice
	if strings.TrimSpace(opts.Device) != "" {
		device = opts.Device
	}
	inputFormat := root.settings.CameraFormat
	if strings.TrimSpace(opts.InputFormat) != "" {
		inputFormat = opts.InputFormat
	}
	return capture.NewFFmpegCamera(capture.FFmpegOptions{
		Device:      device,
		InputFormat: inputFormat,
		FrameRate:   root.settings.FrameRate,
		Logger:      root.logger,
	})
}

func lookupBattery(ctx context.Context, root *rootOptions, lookup, batteryID string) (any, error) {
	client := root.client()
	defer client.Close()

	switch lookup {
	case "status":
		return client.FetchStatus(ctx, batteryID)
	default:
		return client.FetchDetails(ctx, batteryID)
	}
}

package capture

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"battery-passport/internal/scan"
)

// DefaultAcquireTimeout bounds how long Open waits for the first frame.
const DefaultAcquireTimeout = 10 * time.Second

// FFmpegOptions configures an ffmpeg-backed camera.
type FFmpegOptions struct {
	FFmpegPath     string
	Device         string
	InputFormat    string
	FrameRate      int
	AcquireTimeout time.Duration
	Logger         zerolog.Logger
}

// FFmpegCamera captures a local camera device as an MJPEG stream via ffmpeg.
type FFmpegCamera struct {
	ffmpegPath     string
	device         string
	inputFormat    string
	frameRate      int
	acquireTimeout time.Duration
	goos           string
	start          processStarter
	logger         zerolog.Logger
}

// NewFFmpegCamera constructs the production camera for the host platform.
func NewFFmpegCamera(opts FFmpegOptions) *FFmpegCamera {
	return newFFmpegCamera(opts, runtime.GOOS, startExec)
}

// NewFFmpegCameraForTests constructs a camera with an injected platform and starter.
func NewFFmpegCameraForTests(opts FFmpegOptions, goos string, start processStarter) *FFmpegCamera {
	return newFFmpegCamera(opts, goos, start)
}

func newFFmpegCamera(opts FFmpegOptions, goos string, start processStarter) *FFmpegCamera {
	ffmpegPath := strings.TrimSpace(opts.FFmpegPath)
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	device := strings.TrimSpace(opts.Device)
	if device == "" {
		device = DefaultDevice(goos)
	}
	timeout := opts.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	return &FFmpegCamera{
		ffmpegPath:     ffmpegPath,
		device:         device,
		inputFormat:    strings.TrimSpace(opts.InputFormat),
		frameRate:      opts.FrameRate,
		acquireTimeout: timeout,
		goos:           goos,
		start:          start,
		logger:         opts.Logger.With().Str("component", "camera").Logger(),
	}
}

// Device returns the capture device this camera opens.
func (c *FFmpegCamera) Device() string {
	return c.device
}

// Open starts ffmpeg and waits for the first frame. On failure no process is
// left running.
func (c *FFmpegCamera) Open(ctx context.Context) (scan.Stream, error) {
	args := buildCaptureArgs(c.goos, c.inputFormat, c.device, c.frameRate)
	c.logger.Debug().Str("command", c.ffmpegPath).Strs("args", args).Msg("starting camera capture")

	proc, err := c.start(c.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", c.ffmpegPath, err)
	}

	stream := newMJPEGStream(proc)
	waitCtx, cancel := context.WithTimeout(ctx, c.acquireTimeout)
	defer cancel()

	if err := stream.waitFirst(waitCtx); err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			c.logger.Warn().Err(closeErr).Msg("stop camera capture")
		}
		return nil, fmt.Errorf("open camera %s: %w", c.device, err)
	}
	return stream, nil
}

// DefaultDevice returns the conventional first camera for a platform.
func DefaultDevice(goos string) string {
	switch goos {
	case "darwin":
		return "0"
	case "windows":
		return "Integrated Camera"
	default:
		return "/dev/video0"
	}
}

// defaultInputFormat returns the ffmpeg demuxer for local cameras.
func defaultInputFormat(goos string) string {
	switch goos {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "v4l2"
	}
}

// buildCaptureArgs builds ffmpeg args writing camera frames as MJPEG to stdout.
func buildCaptureArgs(goos, inputFormat, device string, frameRate int) []string {
	format := inputFormat
	if format == "" {
		format = defaultInputFormat(goos)
	}
	input := device
	if format == "dshow" && !strings.HasPrefix(input, "video=") {
		input = "video=" + input
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-f", format,
	}
	if frameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(frameRate))
	}

	return append(args,
		"-i", input,
		"-an",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	)
}

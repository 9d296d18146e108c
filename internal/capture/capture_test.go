package capture

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-passport/internal/scan"
)

// fakeProcess wires a pipe-backed stdout to a process handle.
type fakeProcess struct {
	killed atomic.Bool
	waited atomic.Bool
	writer *io.PipeWriter
}

func newFakeProcess(stderr string) (*fakeProcess, *process) {
	pr, pw := io.Pipe()
	fake := &fakeProcess{writer: pw}
	tail := newTailBuffer(64)
	_, _ = tail.Write([]byte(stderr))

	return fake, &process{
		stdout: pr,
		stderr: tail,
		kill: func() error {
			fake.killed.Store(true)
			return pw.Close()
		},
		wait: func() error {
			fake.waited.Store(true)
			return nil
		},
	}
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// TestSplitJPEGAcrossChunks verifies frames survive arbitrary read boundaries.
func TestSplitJPEGAcrossChunks(t *testing.T) {
	var stream []byte
	stream = append(stream, 0x00, 0x13, 0xFF)
	stream = append(stream, 0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9)
	stream = append(stream, 0x42)
	stream = append(stream, 0xFF, 0xD8, 0x03, 0xFF, 0x00, 0xFF, 0xD9)
	stream = append(stream, 0xFF, 0xD8, 0x07)

	scanner := bufio.NewScanner(iotest.OneByteReader(bytes.NewReader(stream)))
	scanner.Split(splitJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	require.NoError(t, scanner.Err())
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}, frames[0])
	assert.Equal(t, []byte{0xFF, 0xD8, 0x03, 0xFF, 0x00, 0xFF, 0xD9}, frames[1])
}

// TestBuildCaptureArgs checks the demuxer and input naming per platform.
func TestBuildCaptureArgs(t *testing.T) {
	linux := buildCaptureArgs("linux", "", "/dev/video2", 15)
	assert.Contains(t, linux, "v4l2")
	assert.Contains(t, linux, "/dev/video2")
	assert.Contains(t, linux, "15")
	assert.Equal(t, "-", linux[len(linux)-1])

	mac := buildCaptureArgs("darwin", "", "0", 0)
	assert.Contains(t, mac, "avfoundation")
	assert.NotContains(t, mac, "-framerate")

	win := buildCaptureArgs("windows", "", "USB Camera", 0)
	assert.Contains(t, win, "dshow")
	assert.Contains(t, win, "video=USB Camera")

	override := buildCaptureArgs("linux", "dshow", "video=Cam", 0)
	assert.Contains(t, override, "video=Cam")
	assert.NotContains(t, override, "video=video=Cam")
}

// TestDefaultDevice verifies platform camera defaults.
func TestDefaultDevice(t *testing.T) {
	assert.Equal(t, "/dev/video0", DefaultDevice("linux"))
	assert.Equal(t, "0", DefaultDevice("darwin"))
	assert.NotEmpty(t, DefaultDevice("windows"))
}

// TestOpenReturnsDecodableFrames covers acquisition through the first frames.
func TestOpenReturnsDecodableFrames(t *testing.T) {
	fake, proc := newFakeProcess("")
	var gotArgs []string
	camera := NewFFmpegCameraForTests(FFmpegOptions{Device: "/dev/video1"}, "linux", func(name string, args ...string) (*process, error) {
		gotArgs = args
		return proc, nil
	})

	first, second := encodeJPEG(t, 8, 6), encodeJPEG(t, 16, 12)
	go func() {
		_, _ = fake.writer.Write(first)
		_, _ = fake.writer.Write(second)
	}()

	stream, err := camera.Open(context.Background())
	require.NoError(t, err)
	assert.Contains(t, gotArgs, "/dev/video1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := stream.Frame(ctx)
	require.NoError(t, err)
	assert.Positive(t, frame.Bounds().Dx())

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.True(t, fake.killed.Load())
	assert.True(t, fake.waited.Load())
}

// TestOpenFailsWhenProcessExits checks an early exit surfaces stderr and reaps the process.
func TestOpenFailsWhenProcessExits(t *testing.T) {
	fake, proc := newFakeProcess("/dev/video0: No such file or directory\n")
	camera := NewFFmpegCameraForTests(FFmpegOptions{}, "linux", func(string, ...string) (*process, error) {
		return proc, nil
	})
	require.NoError(t, fake.writer.Close())

	_, err := camera.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, scan.ErrStreamEnded)
	assert.Contains(t, err.Error(), "No such file or directory")
	assert.True(t, fake.killed.Load())
	assert.True(t, fake.waited.Load())
}

// TestOpenTimesOutWithoutFrames verifies the acquisition bound kills a silent process.
func TestOpenTimesOutWithoutFrames(t *testing.T) {
	fake, proc := newFakeProcess("")
	camera := NewFFmpegCameraForTests(FFmpegOptions{AcquireTimeout: 20 * time.Millisecond}, "linux", func(string, ...string) (*process, error) {
		return proc, nil
	})

	_, err := camera.Open(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, fake.killed.Load())
}

// TestFrameAfterSourceEndsReturnsStreamEnded checks a dead source is reported to the scanner.
func TestFrameAfterSourceEndsReturnsStreamEnded(t *testing.T) {
	fake, proc := newFakeProcess("")
	camera := NewFFmpegCameraForTests(FFmpegOptions{}, "linux", func(string, ...string) (*process, error) {
		return proc, nil
	})
	frame := encodeJPEG(t, 4, 4)
	go func() {
		_, _ = fake.writer.Write(frame)
		_ = fake.writer.Close()
	}()

	stream, err := camera.Open(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = stream.Frame(ctx)
	require.NoError(t, err)

	_, err = stream.Frame(ctx)
	assert.ErrorIs(t, err, scan.ErrStreamEnded)
}

// TestCloseReapsAfterReaderExits checks the process is waited on only once stdout is drained.
func TestCloseReapsAfterReaderExits(t *testing.T) {
	fake, proc := newFakeProcess("")
	var stream *mjpegStream
	var readerDoneAtWait atomic.Bool
	proc.wait = func() error {
		select {
		case <-stream.done:
			readerDoneAtWait.Store(true)
		default:
		}
		return nil
	}
	stream = newMJPEGStream(proc)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.True(t, fake.killed.Load())
	assert.True(t, readerDoneAtWait.Load())
}

// TestStillCameraCyclesFrames verifies file-backed streams loop and close.
func TestStillCameraCyclesFrames(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 0, 2)
	for i, size := range []int{3, 5} {
		img := image.NewGray(image.Rect(0, 0, size, size))
		img.Set(0, 0, color.White)
		path := filepath.Join(dir, []string{"a.png", "b.png"}[i])
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
		paths = append(paths, path)
	}

	stream, err := NewStillCamera(paths...).Open(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	for _, want := range []int{3, 5, 3} {
		frame, err := stream.Frame(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, frame.Bounds().Dx())
	}

	require.NoError(t, stream.Close())
	_, err = stream.Frame(ctx)
	assert.ErrorIs(t, err, scan.ErrStreamEnded)
}

// TestStillCameraRejectsBadInput checks missing and undecodable files.
func TestStillCameraRejectsBadInput(t *testing.T) {
	_, err := NewStillCamera().Open(context.Background())
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err = NewStillCamera(path).Open(context.Background())
	require.Error(t, err)

	_, err = NewStillCamera(filepath.Join(t.TempDir(), "missing.png")).Open(context.Background())
	require.Error(t, err)
}

package scan

import "errors"

var (
	// ErrUnsupported means no QR detection capability could be created.
	ErrUnsupported = errors.New("detection unsupported")
	// ErrCameraUnavailable means the camera could not be opened or stopped delivering frames.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrUnreadable is a per-frame decode failure; the session keeps polling.
	ErrUnreadable = errors.New("unable to read, try again")
	// ErrStreamEnded is returned by a Stream whose source has gone away.
	ErrStreamEnded = errors.New("capture stream ended")
)

// UserMessage maps a scan error to the sentence shown next to the preview.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupported):
		return "QR detection is not supported on this system."
	case errors.Is(err, ErrCameraUnavailable):
		return "Camera permission denied or unavailable."
	case errors.Is(err, ErrUnreadable):
		return "Unable to read QR code. Try again."
	default:
		return err.Error()
	}
}

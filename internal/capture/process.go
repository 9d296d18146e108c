package capture

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// process is a running capture command with its stdout attached.
type process struct {
	stdout io.Reader
	stderr *tailBuffer
	kill   func() error
	wait   func() error
}

// stop kills the command and reaps it once drained is closed. Wait closes
// the stdout pipe, so it must not run while a reader is still using it.
func (p *process) stop(drained <-chan struct{}) error {
	if err := p.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	if drained != nil {
		<-drained
	}
	// A killed process always reports a non-zero exit.
	_ = p.wait()
	return nil
}

// stderrTail returns the last diagnostic output of the command.
func (p *process) stderrTail() string {
	if p.stderr == nil {
		return ""
	}
	return p.stderr.String()
}

// processStarter abstracts process creation for testability.
type processStarter func(name string, args ...string) (*process, error)

// startExec launches a command via os/exec with stdout piped.
func startExec(name string, args ...string) (*process, error) {
	cmd := exec.Command(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &process{
		stdout: stdout,
		stderr: stderr,
		kill:   func() error { return cmd.Process.Kill() },
		wait:   cmd.Wait,
	}, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

// Write appends p, dropping the oldest bytes beyond the limit.
func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append([]byte(nil), b.buf[over:]...)
	}
	return len(p), nil
}

// String returns the buffered text trimmed of surrounding whitespace.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}

// Package supervisor runs the external downloader, one process per active
// download, and turns its output stream into progress events.
package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/pkg/logger"
)

// DefaultBinary is the downloader looked up on PATH when none is configured.
const DefaultBinary = "yt-dlp"

const maxLineSize = 1 << 20

// ExitError reports a downloader that exited with a non-zero status.
// Code is -1 when the process was killed by a signal.
type ExitError struct {
	Binary string
	Code   int
	// Stderr is the last non-empty line the process wrote to stderr.
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Binary, e.Code)
	if e.Code < 0 {
		msg = e.Binary + " was terminated"
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Request describes a single download.
type Request struct {
	URL        string
	OutputPath string
	Quality    model.Quality
}

// ProgressFunc receives progress events in the order the process emits them.
type ProgressFunc func(Progress)

// Options configures a Supervisor.
type Options struct {
	// Binary is the downloader executable; defaults to DefaultBinary.
	Binary string
	// ExtraArgs are appended to every invocation.
	ExtraArgs []string
	Logger    logger.Logger
}

// Supervisor spawns downloader processes.
type Supervisor struct {
	binary    string
	extraArgs []string
	log       logger.Logger
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	return &Supervisor{
		binary:    opts.Binary,
		extraArgs: opts.ExtraArgs,
		log:       logger.OrNop(opts.Logger),
	}
}

// Binary returns the configured downloader executable.
func (s *Supervisor) Binary() string {
	return s.binary
}

// Version runs "<binary> --version" and returns its trimmed output.
func (s *Supervisor) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, s.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", s.binary, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Process is a running downloader.
type Process struct {
	cmd  *exec.Cmd
	name string
	done chan struct{}
	err  error

	once    sync.Once
	termErr error
}

// Start spawns the downloader for req. onProgress may be nil. Cancelling ctx
// terminates the process the same way Terminate does.
func (s *Supervisor) Start(ctx context.Context, req Request, onProgress ProgressFunc) (*Process, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	args := append(BuildArgs(req), s.extraArgs...)
	cmd := exec.CommandContext(ctx, s.binary, args...)
	setProcAttr(cmd)
	cmd.Cancel = func() error { return terminate(cmd.Process) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.binary, err)
	}

	p := &Process{cmd: cmd, name: filepath.Base(s.binary), done: make(chan struct{})}
	var (
		wg       sync.WaitGroup
		state    ParseState
		lastLine string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sc := newLineScanner(stdout)
		for sc.Scan() {
			var ev *Progress
			state, ev = Parse(state, sc.Text())
			if ev != nil {
				onProgress(*ev)
			}
		}
		// keep the pipe drained so the child never blocks on a full buffer
		_, _ = io.Copy(io.Discard, stdout)
	}()
	go func() {
		defer wg.Done()
		sc := newLineScanner(stderr)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			lastLine = line
			s.log.Warning("%s[%d]: %s", p.name, cmd.Process.Pid, line)
		}
		_, _ = io.Copy(io.Discard, stderr)
	}()

	go func() {
		wg.Wait()
		err := cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			onProgress(Progress{Percent: 100, Downloaded: state.Total, Total: state.Total})
		case errors.As(err, &exitErr):
			p.err = &ExitError{Binary: p.name, Code: exitErr.ExitCode(), Stderr: lastLine}
		default:
			p.err = err
		}
		close(p.done)
	}()
	return p, nil
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its output is consumed.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits. It returns nil on exit code 0, an
// *ExitError on a non-zero exit, or the underlying error otherwise.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Terminate asks the process to stop. It does not wait for the exit; the
// outcome is reported by Wait.
func (p *Process) Terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	p.once.Do(func() {
		p.termErr = terminate(p.cmd.Process)
	})
	return p.termErr
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	sc.Split(scanLinesOrReturns)
	return sc
}

// scanLinesOrReturns splits on '\n' and on bare '\r', which downloaders use
// to redraw their progress line in place.
func scanLinesOrReturns(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// process owns one running resolver and fans its parsed output out to
// listeners. Listeners run sequentially on the reader goroutine, so they
// observe events in output order.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser // nil in PTY mode
	tty    *os.File  // non-nil in PTY mode
	parser OutputParser
	logger *slog.Logger

	killGrace time.Duration

	mu        sync.Mutex
	listeners []listener
	nextID    int
	exited    bool

	// Set by waitProcess before reaped is closed.
	state   *os.ProcessState
	waitErr error

	writeMu    sync.Mutex
	reaped     chan struct{} // closed once the resolver itself has exited
	done       chan struct{} // closed after the exit event is dispatched
	stderrDone chan struct{}
	closeOnce  sync.Once
	termOnce   sync.Once
	killOnce   sync.Once
}

// outputDrain bounds how long output may stay open after the resolver
// exits, e.g. when a helper it started left the process group.
const outputDrain = time.Second

type listener struct {
	id int
	fn func(Event)
}

// startProcess spawns "<command> [subcommand] <query>". Output is not read
// until run is called, so listeners attached in between see everything.
func startProcess(cfg *config, query string) (*process, error) {
	args := make([]string, 0, 2)
	if cfg.subcommand != "" {
		args = append(args, cfg.subcommand)
	}
	args = append(args, query)

	cmd := exec.Command(cfg.command, args...)

	cmd.Dir = cfg.workdir
	if cmd.Dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		cmd.Dir = cwd
	}

	if len(cfg.extraEnv) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.extraEnv {
			cmd.Env = setEnvVar(cmd.Env, k, v)
		}
	}

	p := &process{
		cmd:       cmd,
		parser:    cfg.parserFactory(),
		logger:    cfg.logger,
		killGrace: cfg.killGrace,
		reaped:    make(chan struct{}),
		done:      make(chan struct{}),
	}

	if cfg.usePTY {
		// pty.Start puts the child in its own session, which also makes it
		// the leader of a new process group.
		tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 50, Cols: 250})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
		}
		p.tty, p.stdin, p.stdout = tty, tty, tty
		return p, nil
	}

	// Own process group so terminate reaches anything the resolver spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	p.stdin, p.stdout, p.stderr = stdin, stdout, stderr
	return p, nil
}

// setEnvVar updates or adds an environment variable.
func setEnvVar(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// run starts the exit watcher and the output goroutines.
func (p *process) run() {
	go p.waitProcess()
	if p.stderr != nil {
		p.stderrDone = make(chan struct{})
		go p.drainStderr()
	}
	go p.readOutput()
}

// pid returns the process id.
func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// subscribe attaches fn to the event stream. It reports false, attaching
// nothing, when the exit event has already been dispatched.
func (p *process) subscribe(fn func(Event)) (unsubscribe func(), ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return nil, false
	}
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listener{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.listeners = slices.DeleteFunc(p.listeners, func(l listener) bool { return l.id == id })
	}, true
}

// dispatch delivers ev to a snapshot of the current listeners.
func (p *process) dispatch(ev Event) {
	p.mu.Lock()
	ls := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, l := range ls {
		l.fn(ev)
	}
}

// dispatchChunk delivers the events parsed from one read, followed by
// EventChunkEnd.
func (p *process) dispatchChunk(events []Event) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		p.dispatch(ev)
	}
	p.dispatch(Event{Kind: EventChunkEnd})
}

// waitProcess reaps the resolver as soon as it exits, whether or not its
// output is still open. Whatever it left in its process group is killed so
// the output reaches EOF, and output still open after outputDrain is closed.
func (p *process) waitProcess() {
	state, err := p.cmd.Process.Wait()
	p.state, p.waitErr = state, err
	close(p.reaped)

	if err := syscall.Kill(-p.pid(), syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Debug("kill resolver leftovers", slog.Int("pid", p.pid()), slog.Any("error", err))
	}

	t := time.NewTimer(outputDrain)
	defer t.Stop()
	select {
	case <-p.done:
	case <-t.C:
		p.logger.Debug("resolver output still open after exit", slog.Int("pid", p.pid()))
		p.closeOutput()
	}
}

// closeOutput closes the read side of stdout and stderr, unblocking their
// readers.
func (p *process) closeOutput() {
	p.closeOnce.Do(func() {
		_ = p.stdout.Close()
		if p.stderr != nil {
			_ = p.stderr.Close()
		}
	})
}

// readOutput feeds stdout to the parser until EOF, then waits for the
// resolver to be reaped and dispatches the exit event.
func (p *process) readOutput() {
	defer close(p.done)

	buf := make([]byte, 32*1024)
	var readErr error
	for {
		n, err := p.stdout.Read(buf)
		if n > 0 {
			p.dispatchChunk(p.parser.Feed(buf[:n]))
		}
		if err != nil {
			if !isStreamEnd(err) {
				readErr = err
			}
			break
		}
	}
	p.dispatchChunk(p.parser.Flush())
	if readErr != nil {
		p.dispatch(Event{Kind: EventError, Err: fmt.Errorf("%w: read output: %v", ErrProcess, readErr)})
	}

	<-p.reaped
	if p.stderrDone != nil {
		<-p.stderrDone
	}
	p.closeOutput()
	if p.tty == nil {
		_ = p.stdin.Close()
	}

	code := -1
	waitErr := p.waitErr
	if p.state != nil {
		code = p.state.ExitCode()
		if waitErr == nil && !p.state.Success() {
			waitErr = &exec.ExitError{ProcessState: p.state}
		}
	}
	p.logger.Debug("resolver exited",
		slog.Int("pid", p.pid()),
		slog.Int("exit_code", code))

	p.mu.Lock()
	p.exited = true
	ls := slices.Clone(p.listeners)
	p.listeners = nil
	p.mu.Unlock()

	ev := Event{Kind: EventExit, ExitCode: code, Err: waitErr}
	for _, l := range ls {
		l.fn(ev)
	}
}

// isStreamEnd reports whether a read error just means the output is over.
// A pseudo-terminal reports EIO once the child side is gone.
func isStreamEnd(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EIO)
}

// drainStderr reads and logs stderr output.
func (p *process) drainStderr() {
	defer close(p.stderrDone)

	buf := make([]byte, 4096)
	for {
		n, err := p.stderr.Read(buf)
		if n > 0 {
			p.logger.Debug("resolver stderr",
				slog.Int("pid", p.pid()),
				slog.String("output", string(buf[:n])))
		}
		if err != nil {
			return
		}
	}
}

// send writes data to the resolver's stdin, giving up when ctx ends.
func (p *process) send(ctx context.Context, data string) error {
	done := make(chan error, 1)
	go func() {
		p.writeMu.Lock()
		defer p.writeMu.Unlock()
		_, err := io.WriteString(p.stdin, data)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: write input: %v", ErrProcess, err)
		}
		return nil
	}
}

// hasExited reports whether the exit event has been dispatched.
func (p *process) hasExited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// terminate asks the resolver to stop with SIGTERM and escalates to SIGKILL
// after the kill grace period. Repeated calls are no-ops.
func (p *process) terminate() {
	p.termOnce.Do(func() {
		if p.hasExited() {
			return
		}
		if err := p.signal(syscall.SIGTERM); err != nil {
			p.logger.Debug("terminate resolver", slog.Int("pid", p.pid()), slog.Any("error", err))
		}
		if p.killGrace <= 0 {
			return
		}
		go func() {
			t := time.NewTimer(p.killGrace)
			defer t.Stop()
			select {
			case <-p.done:
			case <-t.C:
				p.kill()
			}
		}()
	})
}

// kill sends SIGKILL to the resolver's process group. Repeated calls are
// no-ops.
func (p *process) kill() {
	p.killOnce.Do(func() {
		if p.hasExited() {
			return
		}
		if err := p.signal(syscall.SIGKILL); err != nil {
			p.logger.Debug("kill resolver", slog.Int("pid", p.pid()), slog.Any("error", err))
		}
	})
}

// signal delivers sig to the whole process group, falling back to the
// process itself. Signalling an exited process is not an error.
func (p *process) signal(sig syscall.Signal) error {
	proc := p.cmd.Process
	if proc == nil {
		return nil
	}
	err := syscall.Kill(-proc.Pid, sig)
	if err == nil {
		return nil
	}
	return signalProcess(proc, sig)
}

// signalProcess sends sig to a process, returning nil if the process
// has already exited (os.ErrProcessDone).
func signalProcess(proc *os.Process, sig os.Signal) error {
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// waitExit blocks until the process has exited or timeout elapses.
func (p *process) waitExit(timeout time.Duration) bool {
	if timeout <= 0 {
		<-p.done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	}
}

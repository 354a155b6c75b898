package resolver

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/partkit/library"
)

// Mock resolver scripts. They receive "import <query>" like the real CLI.
const (
	// Scenario A then B: two distinct options and a duplicate, then the
	// confirmation for whatever is typed.
	scriptInteractive = `printf -- '- r1\n- r2 - desc\n- r1\n'
read -r sel
echo "Imported $sel to /lib/$sel.tsx"
sleep 30
`
	scriptNoResults = `echo "No results found matching your query."
sleep 30
`
	scriptNoResultsThenOptions = `echo "No results found matching your query."
printf -- '- r1\n- r2\n'
sleep 30
`
	scriptExitEarly = `echo "starting up"
exit 3
`
	scriptExitAfterSelection = `printf -- '- r1\n'
read -r sel
exit 4
`
	// Scenario A with every line in its own write.
	scriptSplitOptions = `echo "- r1"
sleep 0.05
echo "- r2 - desc"
sleep 0.05
echo "- r1"
read -r sel
echo "Imported $sel to /lib/$sel.tsx"
sleep 30
`
	// The resolver exits while a background helper still holds its output.
	scriptExitLeavingHelper = `echo "starting up"
(sleep 8 &)
exit 2
`
	scriptSelectionExitLeavingHelper = `printf -- '- r1\n'
read -r sel
(sleep 8 &)
exit 4
`
	scriptConfirmLeavingHelper = `printf -- '- r1\n'
read -r sel
echo "Imported $sel to /lib/$sel.tsx"
(sleep 8 &)
exit 0
`
	scriptSilent = `sleep 30
`
	scriptNeverConfirms = `printf -- '- r1\n'
read -r sel
sleep 30
`
	// Echoes the query back as the only option, so concurrent launches
	// can be told apart.
	scriptEchoQuery = `printf -- '- %s-a\n' "$2"
read -r sel
echo "Imported $sel to /lib/$sel.tsx"
sleep 30
`
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mock_resolver.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0o755))
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type noLibrary struct{}

func (noLibrary) Find(string) (library.Component, bool, error) {
	return library.Component{}, false, nil
}

// testConfig returns a config running script, with short kill grace and no
// local library.
func testConfig(t *testing.T, body string, opts ...Option) config {
	t.Helper()
	base := []Option{
		WithCommand(writeScript(t, body)),
		WithKillGrace(time.Second),
		WithLibrary(noLibrary{}),
		WithLogger(discardLogger()),
	}
	return newConfig(append(base, opts...))
}

// newTestManager returns a manager that is cleared when the test ends.
func newTestManager(t *testing.T, cfg config) *Manager {
	t.Helper()
	m := newManager(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func requireExited(t *testing.T, p *process) {
	t.Helper()
	require.Eventually(t, p.hasExited, 5*time.Second, 10*time.Millisecond, "resolver process still running")
}

// idleProcess is a process that was never started. Signalling it is a no-op;
// closing done plays its exit.
func idleProcess(t *testing.T) *process {
	t.Helper()
	p := &process{
		cmd:    &exec.Cmd{},
		logger: discardLogger(),
		reaped: make(chan struct{}),
		done:   make(chan struct{}),
	}
	t.Cleanup(func() {
		select {
		case <-p.done:
		default:
			close(p.done)
		}
	})
	return p
}

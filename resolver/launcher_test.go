package resolver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLauncher(t *testing.T, body string, opts ...Option) (*Launcher, *Manager) {
	t.Helper()
	cfg := testConfig(t, body, opts...)
	m := newTestManager(t, cfg)
	return &Launcher{config: cfg, sessions: m}, m
}

func TestLaunch_SelectionRequired(t *testing.T) {
	l, m := newTestLauncher(t, scriptInteractive)

	out, err := l.Launch(context.Background(), "resistor")
	require.NoError(t, err)

	assert.False(t, out.NoResults)
	assert.Equal(t, []string{"r1", "r2"}, out.Options)

	sess, ok := m.Get(out.SessionID)
	require.True(t, ok, "session must be registered before Launch returns")
	assert.Equal(t, "resistor", sess.Query())
	assert.Equal(t, []string{"r1", "r2"}, sess.Options())

	for _, opt := range []string{"r1", "r2"} {
		found, ok := m.FindByOption(opt)
		require.True(t, ok, opt)
		assert.Same(t, sess, found)
	}
	assert.False(t, sess.proc.hasExited(), "process keeps running while a selection is pending")
}

func TestLaunch_NoResults(t *testing.T) {
	l, m := newTestLauncher(t, scriptNoResults)

	out, err := l.Launch(context.Background(), "nothing")
	require.NoError(t, err)

	assert.True(t, out.NoResults)
	assert.Empty(t, out.SessionID)
	assert.Zero(t, m.Count())
}

func TestLaunch_NoResultsWinsOverLaterOptions(t *testing.T) {
	l, m := newTestLauncher(t, scriptNoResultsThenOptions)

	out, err := l.Launch(context.Background(), "nothing")
	require.NoError(t, err)
	assert.True(t, out.NoResults)

	// Options printed after the sentinel never create a session.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, m.Count())
	_, ok := m.FindByOption("r1")
	assert.False(t, ok)
}

func TestLaunch_OptionsInSeparateWrites(t *testing.T) {
	l, m := newTestLauncher(t, scriptSplitOptions, WithOptionSettle(300*time.Millisecond))

	out, err := l.Launch(context.Background(), "resistor")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, out.Options)

	sess, ok := m.FindByOption("r2")
	require.True(t, ok)
	assert.Equal(t, out.SessionID, sess.ID())
}

func TestLaunch_ExitWithoutSignal(t *testing.T) {
	l, m := newTestLauncher(t, scriptExitEarly)

	_, err := l.Launch(context.Background(), "resistor")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrExitWithoutSignal)
	assert.True(t, IsProcessExit(err))

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "launch", rerr.Op)
	assert.Equal(t, 3, rerr.ExitCode)
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Zero(t, m.Count())
}

func TestLaunch_ExitNoticedWhileHelperHoldsOutput(t *testing.T) {
	l, m := newTestLauncher(t, scriptExitLeavingHelper)

	start := time.Now()
	_, err := l.Launch(context.Background(), "resistor")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrExitWithoutSignal)
	assert.Contains(t, err.Error(), "exit code 2")
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Zero(t, m.Count())
}

func TestLaunch_SpawnFailure(t *testing.T) {
	l, m := newTestLauncher(t, scriptInteractive,
		WithCommand(filepath.Join(t.TempDir(), "missing-resolver")))

	_, err := l.Launch(context.Background(), "resistor")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawn)
	assert.Zero(t, m.Count())
}

func TestLaunch_Timeout(t *testing.T) {
	l, m := newTestLauncher(t, scriptSilent, WithLaunchTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := l.Launch(context.Background(), "resistor")
	require.Error(t, err)

	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, m.Count())
}

func TestLaunch_ContextCanceled(t *testing.T) {
	l, _ := newTestLauncher(t, scriptSilent)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := l.Launch(ctx, "resistor")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLaunch_MaxSessions(t *testing.T) {
	l, m := newTestLauncher(t, scriptInteractive, WithMaxSessions(1))

	_, err := l.Launch(context.Background(), "first")
	require.NoError(t, err)

	_, err = l.Launch(context.Background(), "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxSessions)
	assert.Equal(t, 1, m.Count())
}

func TestLaunch_ManagerClosed(t *testing.T) {
	l, m := newTestLauncher(t, scriptInteractive)
	require.NoError(t, m.Close())

	_, err := l.Launch(context.Background(), "resistor")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestLaunch_WorkDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	l, _ := newTestLauncher(t, `printf -- '- %s\n- %s\n' "$(basename "$PWD")" "$PARTKIT_TEST_OPTION"
sleep 30
`,
		WithWorkDir(dir),
		WithEnv(map[string]string{"PARTKIT_TEST_OPTION": "from-env"}),
	)

	out, err := l.Launch(context.Background(), "resistor")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(dir), "from-env"}, out.Options)
}

func TestLaunch_NoisyStderr(t *testing.T) {
	// Enough stderr to fill a pipe buffer several times over.
	l, _ := newTestLauncher(t, `head -c 262144 /dev/zero | tr '\0' 'x' >&2
printf -- '- r1\n'
sleep 30
`)

	out, err := l.Launch(context.Background(), "resistor")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, out.Options)
}

func TestLaunch_LaterOptionsGrowSession(t *testing.T) {
	l, m := newTestLauncher(t, `printf -- '- r1\n'
sleep 0.5
printf -- '- r2\n- r1\n'
sleep 30
`, WithOptionSettle(50*time.Millisecond))

	out, err := l.Launch(context.Background(), "resistor")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, out.Options)

	require.Eventually(t, func() bool {
		opts, _ := m.Options(out.SessionID)
		return len(opts) == 2
	}, 5*time.Second, 10*time.Millisecond)

	opts, ok := m.Options(out.SessionID)
	require.True(t, ok)
	assert.Equal(t, []string{"r1", "r2"}, opts)

	sess, ok := m.FindByOption("r2")
	require.True(t, ok)
	assert.Equal(t, out.SessionID, sess.ID())
}

func TestLaunch_PTY(t *testing.T) {
	l, m := newTestLauncher(t, scriptInteractive, WithPTY(true))

	out, err := l.Launch(context.Background(), "resistor")
	if errors.Is(err, ErrSpawn) {
		t.Skipf("pseudo-terminal unavailable: %v", err)
	}
	require.NoError(t, err)
	// Terminal line discipline may split the output differently.
	assert.Contains(t, out.Options, "r1")

	sess, ok := m.Get(out.SessionID)
	require.True(t, ok)

	c := &Completer{config: l.config, sessions: m}
	path, err := c.Complete(context.Background(), sess, "r1")
	require.NoError(t, err)
	assert.Equal(t, "/lib/r1.tsx", path)
	requireExited(t, sess.proc)
}

func newTestLaunchState(t *testing.T, settle time.Duration) (*launchState, *Manager) {
	t.Helper()
	m := newTestManager(t, testConfig(t, scriptSilent))
	return newLaunchState("resistor", idleProcess(t), m, settle), m
}

func option(tok string) Event {
	return Event{Kind: EventOption, Option: tok}
}

func TestLaunchState_SentinelAfterOptionsWins(t *testing.T) {
	st, m := newTestLaunchState(t, time.Hour)

	st.handle(option("r1"))
	st.handle(option("r2"))
	st.handle(Event{Kind: EventChunkEnd})
	assert.Equal(t, 1, m.Count(), "the session is registered with its first option")
	assert.False(t, st.result.settled())

	st.handle(Event{Kind: EventNoResults})
	st.handle(Event{Kind: EventChunkEnd})

	out, err := st.result.result()
	require.NoError(t, err)
	assert.True(t, out.NoResults)
	assert.Zero(t, m.Count())
	_, ok := m.FindByOption("r1")
	assert.False(t, ok)

	// Later options change nothing.
	st.handle(option("r3"))
	assert.Zero(t, m.Count())
}

func TestLaunchState_ReportsAfterQuietPeriod(t *testing.T) {
	st, m := newTestLaunchState(t, 50*time.Millisecond)

	st.handle(option("r1"))
	st.handle(Event{Kind: EventChunkEnd})
	st.handle(option("r2"))
	st.handle(option("r1"))
	st.handle(Event{Kind: EventChunkEnd})

	require.Eventually(t, st.result.settled, 5*time.Second, 5*time.Millisecond)
	out, err := st.result.result()
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, out.Options)
	assert.Equal(t, st.sess.ID(), out.SessionID)

	// Once reported, the sentinel no longer applies and options keep coming.
	st.handle(Event{Kind: EventNoResults})
	st.handle(option("r3"))
	opts, ok := m.Options(out.SessionID)
	require.True(t, ok)
	assert.Equal(t, []string{"r1", "r2", "r3"}, opts)
}

func TestLaunchState_ReportsAtChunkEndWithoutSettle(t *testing.T) {
	st, _ := newTestLaunchState(t, 0)

	st.handle(option("r1"))
	assert.False(t, st.result.settled())
	st.handle(Event{Kind: EventChunkEnd})

	out, err := st.result.result()
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, out.Options)
}

func TestLaunchState_ExitReportsPendingOptions(t *testing.T) {
	st, _ := newTestLaunchState(t, time.Hour)

	st.handle(option("r1"))
	st.handle(Event{Kind: EventExit, ExitCode: 0})

	out, err := st.result.result()
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, out.Options)
}

func TestLaunchState_ExitBeforeOptions(t *testing.T) {
	st, m := newTestLaunchState(t, time.Hour)

	st.handle(Event{Kind: EventExit, ExitCode: 3})

	_, err := st.result.result()
	assert.ErrorIs(t, err, ErrExitWithoutSignal)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 3, rerr.ExitCode)
	assert.Zero(t, m.Count())
}

package deletion

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-reaper/internal/config"
	"media-reaper/internal/fsops"
	"media-reaper/internal/logging"
	"media-reaper/internal/mediaindex"
)

// stubStrategy returns a fixed outcome and counts its calls
type stubStrategy struct {
	name    string
	outcome Outcome
	panics  bool
	calls   int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(context.Context, string) Outcome {
	s.calls++
	if s.panics {
		panic("boom")
	}
	return s.outcome
}

func TestServiceChain(t *testing.T) {
	type scenario struct {
		testName     string
		strategies   []*stubStrategy
		wantDeleted  bool
		wantStrategy string
		wantCalls    []int
	}

	scenarios := []scenario{
		{
			testName: "first success stops the chain",
			strategies: []*stubStrategy{
				{name: "a", outcome: Outcome{Applicable: true, Deleted: true}},
				{name: "b", outcome: Outcome{Applicable: true, Deleted: true}},
			},
			wantDeleted:  true,
			wantStrategy: "a",
			wantCalls:    []int{1, 0},
		},
		{
			testName: "not applicable falls through",
			strategies: []*stubStrategy{
				{name: "a", outcome: Outcome{}},
				{name: "b", outcome: Outcome{Applicable: true, Deleted: true}},
			},
			wantDeleted:  true,
			wantStrategy: "b",
			wantCalls:    []int{1, 1},
		},
		{
			testName: "error falls through",
			strategies: []*stubStrategy{
				{name: "a", outcome: Outcome{Applicable: true, Err: errors.New("denied")}},
				{name: "b", outcome: Outcome{Applicable: true}},
				{name: "c", outcome: Outcome{Applicable: true, Deleted: true}},
			},
			wantDeleted:  true,
			wantStrategy: "c",
			wantCalls:    []int{1, 1, 1},
		},
		{
			testName: "panic is contained",
			strategies: []*stubStrategy{
				{name: "a", panics: true},
				{name: "b", outcome: Outcome{Applicable: true, Deleted: true}},
			},
			wantDeleted:  true,
			wantStrategy: "b",
			wantCalls:    []int{1, 1},
		},
		{
			testName: "all fail",
			strategies: []*stubStrategy{
				{name: "a", outcome: Outcome{}},
				{name: "b", outcome: Outcome{Applicable: true, Err: errors.New("denied")}},
			},
			wantDeleted: false,
			wantCalls:   []int{1, 1},
		},
		{
			testName:    "no strategies",
			wantDeleted: false,
		},
	}

	for _, s := range scenarios {
		t.Run(s.testName, func(t *testing.T) {
			strategies := make([]Strategy, 0, len(s.strategies))
			for _, st := range s.strategies {
				strategies = append(strategies, st)
			}
			svc := NewService(logging.NewDiscard(), strategies...)

			res := svc.DeleteDetailed(context.Background(), "/sdcard/DCIM/a.jpg")
			assert.Equal(t, s.wantDeleted, res.Deleted)
			assert.Equal(t, s.wantStrategy, res.Strategy)
			for i, st := range s.strategies {
				assert.Equal(t, s.wantCalls[i], st.calls, "calls to %s", st.name)
			}
		})
	}
}

func TestPanicOutcome(t *testing.T) {
	svc := NewService(logging.NewDiscard(), &stubStrategy{name: "a", panics: true})

	res := svc.DeleteDetailed(context.Background(), "/x")
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, "a", res.Outcomes[0].Strategy)
	assert.Equal(t, "error", res.Outcomes[0].Status())
	assert.Equal(t, "error: panic: boom", res.Outcomes[0].Summary())
}

func TestObservers(t *testing.T) {
	svc := NewService(logging.NewDiscard(), &stubStrategy{name: "a", outcome: Outcome{Applicable: true, Deleted: true}})

	var got []Result
	svc.AddObserver(ObserverFunc(func(r Result) { panic("observer bug") }))
	svc.AddObserver(ObserverFunc(func(r Result) { got = append(got, r) }))

	assert.True(t, svc.Delete(context.Background(), "/sdcard/a.jpg"))
	require.Len(t, got, 1)
	assert.Equal(t, "/sdcard/a.jpg", got[0].Path)
	assert.Equal(t, "a", got[0].Strategy)
}

func TestOutcomeStatus(t *testing.T) {
	assert.Equal(t, "deleted", Outcome{Applicable: true, Deleted: true}.Status())
	assert.Equal(t, "not_applicable", Outcome{}.Status())
	assert.Equal(t, "error", Outcome{Applicable: true, Err: errors.New("x")}.Status())
	assert.Equal(t, "still_exists", Outcome{Applicable: true}.Status())
	// A strategy can report an error yet still have removed the file.
	assert.Equal(t, "deleted", Outcome{Applicable: true, Deleted: true, Err: errors.New("exit status 1")}.Status())
}

func TestDirectStrategy(t *testing.T) {
	ctx := context.Background()

	fake := fsops.NewFakeDeleter("/sdcard/a.jpg")
	out := NewDirectStrategy(fake).Attempt(ctx, "/sdcard/a.jpg")
	assert.True(t, out.Deleted)
	assert.Equal(t, []string{"stat:/sdcard/a.jpg", "rm:/sdcard/a.jpg", "stat:/sdcard/a.jpg"}, fake.Calls)

	fake = fsops.NewFakeDeleter()
	out = NewDirectStrategy(fake).Attempt(ctx, "/sdcard/missing.jpg")
	assert.False(t, out.Applicable)
	assert.Equal(t, []string{"stat:/sdcard/missing.jpg"}, fake.Calls)

	fake = fsops.NewFakeDeleter("/sdcard/locked.jpg")
	fake.RemoveErr = errors.New("permission denied")
	out = NewDirectStrategy(fake).Attempt(ctx, "/sdcard/locked.jpg")
	assert.False(t, out.Deleted)
	assert.EqualError(t, out.Err, "permission denied")
}

func TestMediaIndexStrategy(t *testing.T) {
	ctx := context.Background()

	idx, err := mediaindex.Open(filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	defer idx.Close()

	dir := t.TempDir()
	indexed := filepath.Join(dir, "Pictures", "photo.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(indexed), 0o755))
	require.NoError(t, os.WriteFile(indexed, []byte("jpeg"), 0o644))
	_, err = idx.Insert(ctx, mediaindex.Entry{Data: indexed})
	require.NoError(t, err)

	stale := filepath.Join(dir, "Pictures", "stale.jpg")
	_, err = idx.Insert(ctx, mediaindex.Entry{Data: stale})
	require.NoError(t, err)

	strategy := NewMediaIndexStrategy(idx, fsops.OSDeleter{})

	out := strategy.Attempt(ctx, indexed)
	assert.True(t, out.Applicable)
	assert.True(t, out.Deleted)
	assert.NoFileExists(t, indexed)

	out = strategy.Attempt(ctx, filepath.Join(dir, "unindexed.jpg"))
	assert.False(t, out.Applicable)

	// The stale row goes away, but nothing was deleted.
	out = strategy.Attempt(ctx, stale)
	assert.True(t, out.Applicable)
	assert.False(t, out.Deleted)
	_, found, err := idx.Lookup(ctx, stale)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestShellStrategy(t *testing.T) {
	ctx := context.Background()

	t.Run("removes a path with spaces", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "Camera Roll", "IMG 0001.jpg")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))

		s := NewShellStrategy(`rm -f "{{path}}"`, 0, fsops.OSDeleter{})
		out := s.Attempt(ctx, path)
		assert.True(t, out.Deleted)
		assert.NoError(t, out.Err)
		assert.NoFileExists(t, path)
	})

	t.Run("splits the command line without a shell", func(t *testing.T) {
		var argv []string
		fake := fsops.NewFakeDeleter("/sdcard/a b.jpg")
		s := NewShellStrategy(`rm -f "{{path}}"`, 0, fake)
		s.SetCommand(func(ctx context.Context, name string, args ...string) *exec.Cmd {
			argv = append([]string{name}, args...)
			return exec.CommandContext(ctx, "true")
		})

		out := s.Attempt(ctx, "/sdcard/a b.jpg")
		assert.Equal(t, []string{"rm", "-f", "/sdcard/a b.jpg"}, argv)
		assert.True(t, out.Applicable)
		assert.False(t, out.Deleted)
		assert.Equal(t, "still_exists", out.Status())
	})

	t.Run("command that cannot start", func(t *testing.T) {
		fake := fsops.NewFakeDeleter("/sdcard/a.jpg")
		s := NewShellStrategy(`/nonexistent/remover "{{path}}"`, 0, fake)

		out := s.Attempt(ctx, "/sdcard/a.jpg")
		assert.True(t, out.Applicable)
		assert.False(t, out.Deleted)
		assert.Error(t, out.Err)
	})

	t.Run("failing command output is kept", func(t *testing.T) {
		fake := fsops.NewFakeDeleter("/sdcard/a.jpg")
		s := NewShellStrategy(`rm "{{path}}"`, 0, fake)
		s.SetCommand(func(ctx context.Context, name string, args ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "sh", "-c", "echo nope >&2; exit 1")
		})

		out := s.Attempt(ctx, "/sdcard/a.jpg")
		assert.False(t, out.Deleted)
		require.Error(t, out.Err)
		assert.Contains(t, out.Err.Error(), "nope")
	})

	t.Run("missing path is not applicable", func(t *testing.T) {
		called := false
		s := NewShellStrategy(config.DefaultShellCommand, 0, fsops.NewFakeDeleter())
		s.SetCommand(func(ctx context.Context, name string, args ...string) *exec.Cmd {
			called = true
			return exec.CommandContext(ctx, "true")
		})

		out := s.Attempt(ctx, "/sdcard/missing.jpg")
		assert.False(t, out.Applicable)
		assert.False(t, called)
	})

	t.Run("caller cancellation does not stop the command", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.jpg")
		require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		out := NewShellStrategy(`rm -f "{{path}}"`, 0, fsops.OSDeleter{}).Attempt(cancelled, path)
		assert.True(t, out.Deleted)
	})
}

func TestShellCommandLine(t *testing.T) {
	s := NewShellStrategy(`rm -f "{{path}}"`, 0, fsops.NewFakeDeleter())
	assert.Equal(t, `rm -f "/sdcard/a.jpg"`, s.CommandLine("/sdcard/a.jpg"))
	// No escaping: the quote in the name ends up in the command line verbatim.
	assert.Equal(t, `rm -f "/sdcard/a"b.jpg"`, s.CommandLine(`/sdcard/a"b.jpg`))

	for _, path := range []string{
		"/sdcard/a b.jpg",
		`/sdcard/a"b.jpg`,
		`/sdcard/a\b.jpg`,
		`/sdcard/x\y`,
		`/sdcard/it's.jpg`,
	} {
		assert.Equal(t, []string{"rm", "-f", path}, s.Argv(path), path)
	}

	custom := NewShellStrategy(`trash --force --target={{path}}`, 0, fsops.NewFakeDeleter())
	assert.Equal(t, []string{"trash", "--force", `--target=/sdcard/a\b.jpg`}, custom.Argv(`/sdcard/a\b.jpg`))
}

func TestShellBackslashPathRemovesOnlyTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, `a\b.jpg`)
	other := filepath.Join(dir, "ab.jpg")
	for _, p := range []string{target, other} {
		require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0o644))
	}

	s := NewShellStrategy(config.DefaultShellCommand, 0, fsops.OSDeleter{})
	outcome := s.Attempt(context.Background(), target)
	assert.True(t, outcome.Deleted)
	assert.NoFileExists(t, target)
	assert.FileExists(t, other)
}

func TestChainWithRealFiles(t *testing.T) {
	ctx := context.Background()

	idx, err := mediaindex.Open(filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	defer idx.Close()

	dir := t.TempDir()
	indexed := filepath.Join(dir, "indexed.jpg")
	plain := filepath.Join(dir, "plain.jpg")
	for _, p := range []string{indexed, plain} {
		require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0o644))
	}
	_, err = idx.Insert(ctx, mediaindex.Entry{Data: indexed})
	require.NoError(t, err)

	fs := fsops.OSDeleter{}
	svc := NewService(logging.NewDiscard(),
		NewMediaIndexStrategy(idx, fs),
		NewDirectStrategy(fs),
		NewShellStrategy(config.DefaultShellCommand, 0, fs),
	)
	assert.Equal(t, []string{MediaIndexName, DirectName, ShellName}, svc.Strategies())

	res := svc.DeleteDetailed(ctx, indexed)
	assert.True(t, res.Deleted)
	assert.Equal(t, MediaIndexName, res.Strategy)

	res = svc.DeleteDetailed(ctx, plain)
	assert.True(t, res.Deleted)
	assert.Equal(t, DirectName, res.Strategy)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, "not_applicable", res.Outcomes[0].Status())

	res = svc.DeleteDetailed(ctx, filepath.Join(dir, "never-existed.jpg"))
	assert.False(t, res.Deleted)
	assert.Len(t, res.Outcomes, 3)

	// Concurrent requests for the same path: exactly one can remove it.
	target := filepath.Join(dir, "race.jpg")
	require.NoError(t, os.WriteFile(target, []byte("jpeg"), 0o644))
	var wg sync.WaitGroup
	var mu sync.Mutex
	deleted := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Delete(ctx, target) {
				mu.Lock()
				deleted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.NoFileExists(t, target)
	assert.Equal(t, 1, deleted)
}

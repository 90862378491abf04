package deletion

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/mgutz/str"

	"media-reaper/internal/fsops"
)

const (
	MediaIndexName = "media_index"
	DirectName     = "direct"
	ShellName      = "shell"
)

// IndexStore is the part of the media index the first strategy needs
type IndexStore interface {
	Lookup(ctx context.Context, path string) (int64, bool, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

// MediaIndexStrategy deletes through the media index. Paths without an
// index entry are not applicable.
type MediaIndexStrategy struct {
	index IndexStore
	fs    fsops.Deleter
}

func NewMediaIndexStrategy(index IndexStore, fs fsops.Deleter) *MediaIndexStrategy {
	return &MediaIndexStrategy{index: index, fs: fs}
}

func (s *MediaIndexStrategy) Name() string { return MediaIndexName }

func (s *MediaIndexStrategy) Attempt(ctx context.Context, path string) Outcome {
	id, found, err := s.index.Lookup(ctx, path)
	if err != nil {
		return Outcome{Applicable: true, Err: err}
	}
	if !found {
		return Outcome{}
	}

	// A stale entry for a missing file is still dropped, but that is not a
	// deletion of anything on disk.
	existed := s.fs.Exists(path)

	if _, err := s.index.Delete(ctx, id); err != nil {
		return Outcome{Applicable: true, Err: err, Deleted: existed && !s.fs.Exists(path)}
	}
	return Outcome{Applicable: true, Deleted: existed && !s.fs.Exists(path)}
}

// DirectStrategy removes the file with the filesystem primitive
type DirectStrategy struct {
	fs fsops.Deleter
}

func NewDirectStrategy(fs fsops.Deleter) *DirectStrategy {
	return &DirectStrategy{fs: fs}
}

func (s *DirectStrategy) Name() string { return DirectName }

func (s *DirectStrategy) Attempt(_ context.Context, path string) Outcome {
	if !s.fs.Exists(path) {
		return Outcome{}
	}
	if err := s.fs.Remove(path); err != nil {
		return Outcome{Applicable: true, Err: err}
	}
	return Outcome{Applicable: true, Deleted: !s.fs.Exists(path)}
}

// ShellStrategy runs an external remove command. The template is split into
// arguments first and the path is substituted into them afterwards, so the
// path reaches the command verbatim as part of one argument. Quotes,
// backslashes and spaces in the path are never interpreted.
type ShellStrategy struct {
	template string
	timeout  time.Duration
	fs       fsops.Deleter
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewShellStrategy returns a strategy running template with {{path}}
// replaced. timeout <= 0 waits for the command indefinitely.
func NewShellStrategy(template string, timeout time.Duration, fs fsops.Deleter) *ShellStrategy {
	return &ShellStrategy{
		template: template,
		timeout:  timeout,
		fs:       fs,
		command:  exec.CommandContext,
	}
}

// SetCommand sets the function used to build the process.
// To be used for testing only
func (s *ShellStrategy) SetCommand(cmd func(ctx context.Context, name string, args ...string) *exec.Cmd) {
	s.command = cmd
}

func (s *ShellStrategy) Name() string { return ShellName }

// CommandLine returns the command that would be run for path
func (s *ShellStrategy) CommandLine(path string) string {
	return strings.ReplaceAll(s.template, "{{path}}", path)
}

// Argv returns the arguments the command is run with for path
func (s *ShellStrategy) Argv(path string) []string {
	argv := str.ToArgv(s.template)
	for i, arg := range argv {
		argv[i] = strings.ReplaceAll(arg, "{{path}}", path)
	}
	return argv
}

func (s *ShellStrategy) Attempt(_ context.Context, path string) Outcome {
	if !s.fs.Exists(path) {
		return Outcome{}
	}

	argv := s.Argv(path)
	if len(argv) == 0 {
		return Outcome{Applicable: true, Err: errors.New("empty shell command")}
	}

	// The caller's context is deliberately not used: once started, the
	// command runs to completion unless a timeout is configured.
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := s.command(ctx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The process never ran.
			return Outcome{Applicable: true, Err: goerrors.Wrap(err, 0)}
		}
		if msg := strings.TrimSpace(string(output)); msg != "" {
			err = goerrors.Errorf("%s: %s", err, msg)
		} else {
			err = goerrors.Wrap(err, 0)
		}
	}

	return Outcome{Applicable: true, Deleted: !s.fs.Exists(path), Err: err}
}

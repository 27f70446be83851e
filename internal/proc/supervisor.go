// Package proc launches and supervises external game processes.
package proc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/pressplay/arcade/internal/domain"
)

// ExitStatus is the terminal outcome of one supervised process.
type ExitStatus struct {
	Code     int
	Signaled bool
}

// Clean reports a normal zero exit.
func (s ExitStatus) Clean() bool { return !s.Signaled && s.Code == 0 }

func (s ExitStatus) String() string {
	if s.Signaled {
		return "killed"
	}
	return fmt.Sprintf("exit %d", s.Code)
}

// SpawnSpec describes one process launch. OnExit is invoked exactly once,
// from the monitor goroutine, after the process has fully exited — including
// when it was killed through the Handle.
type SpawnSpec struct {
	Session domain.SessionID
	Command domain.Command
	Subs    map[string]string
	Dir     string
	OnExit  func(procID string, status ExitStatus)
}

// Handle identifies a live process. Kill is idempotent: killing an already
// exited process is a no-op, and the exit still arrives via OnExit.
type Handle struct {
	id       string
	cmd      *exec.Cmd
	killOnce sync.Once
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Kill() {
	h.killOnce.Do(func() {
		if h.cmd.Process != nil {
			// Errors here mean the process already exited.
			_ = h.cmd.Process.Kill()
		}
	})
}

type Supervisor struct {
	logDir string
}

func New() *Supervisor { return &Supervisor{logDir: os.TempDir()} }

// Spawn renders the template into an argv, starts the process in the game's
// bundle directory and begins monitoring. It never waits for the process;
// the exit travels through spec.OnExit.
func (s *Supervisor) Spawn(spec SpawnSpec) (*Handle, error) {
	argv := spec.Command.Render(spec.Subs)
	if len(argv) == 0 {
		return nil, apperr.ErrSpawn.Wrap(domain.ErrEmptyCommand)
	}

	procID := uuid.NewString()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir

	logPath := filepath.Join(s.logDir, fmt.Sprintf("arcade_%s_%s.log", spec.Session, procID))
	// Game output goes to a per-process log file; the monitor closes it after Wait.
	if logFile, err := os.Create(logPath); err == nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return nil, apperr.ErrSpawn.Wrap(err)
	}

	h := &Handle{id: procID, cmd: cmd}
	log.Info().Str("module", "proc").Str("session", string(spec.Session)).
		Str("proc", procID).Strs("argv", argv).Str("dir", spec.Dir).Int("pid", cmd.Process.Pid).
		Msg("process started")

	go s.monitor(h, spec)
	return h, nil
}

func (s *Supervisor) monitor(h *Handle, spec SpawnSpec) {
	err := h.cmd.Wait()
	status := ExitStatus{}
	if err != nil {
		code := h.cmd.ProcessState.ExitCode()
		if code < 0 {
			status.Signaled = true
		} else {
			status.Code = code
		}
	}
	if c, ok := h.cmd.Stdout.(*os.File); ok {
		_ = c.Close()
	}
	log.Info().Str("module", "proc").Str("session", string(spec.Session)).
		Str("proc", h.id).Str("status", status.String()).Msg("process exited")
	if spec.OnExit != nil {
		spec.OnExit(h.id, status)
	}
}

// RunCompile executes a build command synchronously in dir. It is the one
// supervised operation that blocks the caller, so it honors ctx.
func (s *Supervisor) RunCompile(ctx context.Context, c domain.Command, dir string) error {
	argv := c.Render(nil)
	if len(argv) == 0 {
		return apperr.ErrCompile.Wrap(domain.ErrEmptyCommand)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Warn().Str("module", "proc").Str("dir", dir).Err(err).
			Str("output", truncate(string(out), 512)).Msg("compile step failed")
		return apperr.ErrCompile.Wrap(err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package session

import (
	"context"

	"github.com/pressplay/arcade/internal/domain"
	"github.com/pressplay/arcade/internal/proc"
)

// ProcessHandle is what the broker keeps per spawned process.
type ProcessHandle interface {
	ID() string
	Kill()
}

// Launcher abstracts the process supervisor so the broker can be exercised
// without real OS processes.
type Launcher interface {
	Spawn(spec proc.SpawnSpec) (ProcessHandle, error)
	RunCompile(ctx context.Context, c domain.Command, dir string) error
}

// CatalogSource is the slice of the catalog the broker needs: a snapshot of
// the current active record.
type CatalogSource interface {
	Get(ctx context.Context, id domain.GameID, versionPin string) (*domain.GameRecord, error)
}

// SupervisorLauncher adapts proc.Supervisor to the Launcher interface.
type SupervisorLauncher struct {
	Supervisor *proc.Supervisor
}

func (l SupervisorLauncher) Spawn(spec proc.SpawnSpec) (ProcessHandle, error) {
	h, err := l.Supervisor.Spawn(spec)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (l SupervisorLauncher) RunCompile(ctx context.Context, c domain.Command, dir string) error {
	return l.Supervisor.RunCompile(ctx, c, dir)
}

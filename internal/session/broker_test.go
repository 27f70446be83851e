package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/pressplay/arcade/internal/domain"
	"github.com/pressplay/arcade/internal/portpool"
	"github.com/pressplay/arcade/internal/proc"
	"github.com/pressplay/arcade/internal/session"
	"github.com/pressplay/arcade/internal/store"
)

func mustCommand(t *testing.T, raw string) domain.Command {
	t.Helper()
	c, err := domain.ParseCommand(raw)
	require.NoError(t, err)
	return c
}

// catalogStub serves a fixed record for any id.
type catalogStub struct {
	rec domain.GameRecord
}

func (c catalogStub) Get(_ context.Context, id domain.GameID, _ string) (*domain.GameRecord, error) {
	r := c.rec
	r.ID = id
	return &r, nil
}

type fakeHandle struct {
	id     string
	onExit func(string, proc.ExitStatus)
	once   sync.Once
}

func (h *fakeHandle) ID() string { return h.id }

// Kill mirrors the real supervisor: the exit report arrives asynchronously,
// never from the killer's goroutine.
func (h *fakeHandle) Kill() {
	h.once.Do(func() {
		go h.onExit(h.id, proc.ExitStatus{Signaled: true})
	})
}

type fakeLauncher struct {
	mu         sync.Mutex
	spawned    []*fakeHandle
	spawnErrs  []error // consumed one per Spawn; nil means success
	compileErr error
	compiles   int
}

func (l *fakeLauncher) Spawn(spec proc.SpawnSpec) (session.ProcessHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.spawnErrs) > 0 {
		err := l.spawnErrs[0]
		l.spawnErrs = l.spawnErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	h := &fakeHandle{
		id:     fmt.Sprintf("proc-%d", len(l.spawned)),
		onExit: spec.OnExit,
	}
	l.spawned = append(l.spawned, h)
	return h, nil
}

func (l *fakeLauncher) RunCompile(context.Context, domain.Command, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.compiles++
	return l.compileErr
}

func (l *fakeLauncher) handles() []*fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeHandle(nil), l.spawned...)
}

type fixture struct {
	broker   *session.Broker
	ports    *portpool.Allocator
	launcher *fakeLauncher
	store    *store.Memory
}

func newFixture(t *testing.T, rec domain.GameRecord, poolSize int) *fixture {
	t.Helper()
	ports, err := portpool.New(25000, 25000+poolSize)
	require.NoError(t, err)
	launcher := &fakeLauncher{}
	mem := store.NewMemory()
	broker := session.NewBroker(catalogStub{rec: rec}, ports, launcher, mem, "127.0.0.1")
	return &fixture{broker: broker, ports: ports, launcher: launcher, store: mem}
}

func (f *fixture) addAccount(t *testing.T, username string) {
	t.Helper()
	acct, err := domain.NewAccount(username, []byte("h"))
	require.NoError(t, err)
	require.NoError(t, f.store.PutAccount(context.Background(), acct))
}

func twoPlayerGame(t *testing.T) domain.GameRecord {
	return domain.GameRecord{
		Name:          "Battleship",
		Type:          domain.GameTypeCLI,
		MinPlayers:    2,
		MaxPlayers:    2,
		Version:       domain.Version{Major: 1},
		BundleDir:     t.TempDir(),
		LaunchCommand: mustCommand(t, "python3 game.py {host} {port}"),
		Active:        true,
	}
}

func singlePlayerGame(t *testing.T) domain.GameRecord {
	g := twoPlayerGame(t)
	g.MinPlayers = 1
	g.MaxPlayers = 1
	return g
}

func TestRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)
	f.addAccount(t, "alice")
	f.addAccount(t, "bob")

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)

	snap, err := f.broker.Status(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionForming, snap.State)
	assert.Equal(t, []string{"alice"}, snap.Players)

	require.NoError(t, f.broker.JoinRoom(id, "bob"))
	snap, err = f.broker.Status(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionReady, snap.State)

	info, err := f.broker.StartSession(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", info.Host)
	require.Len(t, info.MemberPorts, 2)
	assert.NotEqual(t, info.MemberPorts["alice"], info.MemberPorts["bob"])
	assert.Equal(t, 2, f.ports.FreeCount())

	snap, err = f.broker.Status(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionRunning, snap.State)

	// Both processes finish cleanly; the session completes and the ports
	// return only then.
	handles := f.launcher.handles()
	require.Len(t, handles, 2)
	f.broker.ReportExit(id, handles[0].ID(), proc.ExitStatus{})
	snap, err = f.broker.Status(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionRunning, snap.State)
	assert.Equal(t, 2, f.ports.FreeCount())

	f.broker.ReportExit(id, handles[1].ID(), proc.ExitStatus{})
	snap, err = f.broker.Status(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, snap.State)
	assert.Equal(t, 4, f.ports.FreeCount())

	// Play counters land asynchronously.
	require.Eventually(t, func() bool {
		a, err := f.store.GetAccount(ctx, "alice")
		if err != nil {
			return false
		}
		b, err := f.store.GetAccount(ctx, "bob")
		return err == nil && a.Plays == 1 && b.Plays == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAbnormalExitFailsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.broker.JoinRoom(id, "bob"))
	_, err = f.broker.StartSession(ctx, id, "alice")
	require.NoError(t, err)

	handles := f.launcher.handles()
	f.broker.ReportExit(id, handles[0].ID(), proc.ExitStatus{Code: 1})
	f.broker.ReportExit(id, handles[1].ID(), proc.ExitStatus{})

	snap, err := f.broker.Status(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionFailed, snap.State)
	assert.Equal(t, 4, f.ports.FreeCount())
}

func TestJoinRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)

	// Duplicate membership.
	err = f.broker.JoinRoom(id, "alice")
	assert.True(t, apperr.Is(err, apperr.ErrInvalidState))

	require.NoError(t, f.broker.JoinRoom(id, "bob"))
	err = f.broker.JoinRoom(id, "carol")
	assert.True(t, apperr.Is(err, apperr.ErrRoomFull))

	// Unknown room.
	err = f.broker.JoinRoom("no-such-room", "carol")
	assert.True(t, apperr.Is(err, apperr.ErrRoomNotFound))

	// After launch no one gets in.
	_, err = f.broker.StartSession(ctx, id, "alice")
	require.NoError(t, err)
	err = f.broker.JoinRoom(id, "carol")
	assert.True(t, apperr.Is(err, apperr.ErrInvalidState))
}

// Many players race for the last slot; exactly one wins.
func TestConcurrentJoinLastSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)

	id, err := f.broker.CreateRoom(ctx, "game-1", "host")
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.broker.JoinRoom(id, fmt.Sprintf("p%d", i))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			assert.True(t, apperr.Is(err, apperr.ErrRoomFull))
		}
	}
	assert.Equal(t, 1, admitted)

	snap, err := f.broker.Status(id, "host")
	require.NoError(t, err)
	assert.Len(t, snap.Players, 2)
}

func TestStartSessionGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)

	// Below minimum.
	_, err = f.broker.StartSession(ctx, id, "alice")
	assert.True(t, apperr.Is(err, apperr.ErrInvalidState))

	require.NoError(t, f.broker.JoinRoom(id, "bob"))

	// Outsiders cannot start or inspect.
	_, err = f.broker.StartSession(ctx, id, "mallory")
	assert.True(t, apperr.Is(err, apperr.ErrAuthorization))
	_, err = f.broker.Status(id, "mallory")
	assert.True(t, apperr.Is(err, apperr.ErrAuthorization))

	_, err = f.broker.StartSession(ctx, id, "bob")
	require.NoError(t, err)

	// A running session cannot be started again.
	_, err = f.broker.StartSession(ctx, id, "alice")
	assert.True(t, apperr.Is(err, apperr.ErrInvalidState))
}

// Two ready rooms race for a pool of one port: one runs, the other fails
// with pool exhaustion, and no port leaks either way.
func TestConcurrentStartPoolExhaustion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, singlePlayerGame(t), 1)

	id1, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	id2, err := f.broker.CreateRoom(ctx, "game-1", "bob")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, pair := range []struct {
		id     domain.SessionID
		player string
	}{{id1, "alice"}, {id2, "bob"}} {
		wg.Add(1)
		go func(i int, id domain.SessionID, player string) {
			defer wg.Done()
			_, results[i] = f.broker.StartSession(ctx, id, player)
		}(i, pair.id, pair.player)
	}
	wg.Wait()

	var ok, exhausted int
	for _, err := range results {
		if err == nil {
			ok++
		} else if apperr.Is(err, apperr.ErrPoolExhausted) {
			exhausted++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exhausted)
	assert.Equal(t, 0, f.ports.FreeCount())

	// The winner's process exits; the port must come back.
	handles := f.launcher.handles()
	require.Len(t, handles, 1)
	winner := id1
	if results[0] != nil {
		winner = id2
	}
	f.broker.ReportExit(winner, handles[0].ID(), proc.ExitStatus{})
	assert.Equal(t, 1, f.ports.FreeCount())
}

func TestCompileFailureLeasesNothing(t *testing.T) {
	ctx := context.Background()
	rec := singlePlayerGame(t)
	rec.CompileCommand = mustCommand(t, "make build")
	f := newFixture(t, rec, 2)
	f.launcher.compileErr = apperr.ErrCompile

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)

	_, err = f.broker.StartSession(ctx, id, "alice")
	assert.True(t, apperr.Is(err, apperr.ErrCompile))
	assert.Equal(t, 1, f.launcher.compiles)
	assert.Equal(t, 2, f.ports.FreeCount())
	assert.Empty(t, f.launcher.handles())

	snap, err := f.broker.Status(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionFailed, snap.State)
}

// A mid-launch spawn failure kills the already started sibling and every
// leased port finds its way home.
func TestSpawnFailureCleansUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)
	f.launcher.spawnErrs = []error{nil, apperr.ErrSpawn}

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.broker.JoinRoom(id, "bob"))

	_, err = f.broker.StartSession(ctx, id, "alice")
	assert.True(t, apperr.Is(err, apperr.ErrSpawn))

	snap, err := f.broker.Status(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionFailed, snap.State)

	// The sibling's port returns once its kill-induced exit is reported.
	require.Eventually(t, func() bool {
		return f.ports.FreeCount() == 4
	}, time.Second, 5*time.Millisecond)
}

func TestServerModeSharesPort(t *testing.T) {
	ctx := context.Background()
	rec := twoPlayerGame(t)
	rec.Type = domain.GameTypeMultiplayer
	rec.ServerCommand = mustCommand(t, "python3 server.py {port}")
	f := newFixture(t, rec, 4)

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.broker.JoinRoom(id, "bob"))

	info, err := f.broker.StartSession(ctx, id, "alice")
	require.NoError(t, err)
	assert.NotZero(t, info.ServerPort)
	assert.Equal(t, info.ServerPort, info.MemberPorts["alice"])
	assert.Equal(t, info.ServerPort, info.MemberPorts["bob"])
	// One lease for the server; clients connect out to it.
	assert.Equal(t, 3, f.ports.FreeCount())
	assert.Len(t, f.launcher.handles(), 3)

	for _, h := range f.launcher.handles() {
		f.broker.ReportExit(id, h.ID(), proc.ExitStatus{})
	}
	assert.Equal(t, 4, f.ports.FreeCount())
}

func TestLeaveRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.broker.JoinRoom(id, "bob"))

	err = f.broker.LeaveRoom(id, "mallory")
	assert.True(t, apperr.Is(err, apperr.ErrAuthorization))

	// A regular member leaving drops the room back to Forming.
	require.NoError(t, f.broker.LeaveRoom(id, "bob"))
	snap, err := f.broker.Status(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionForming, snap.State)
	assert.Equal(t, []string{"alice"}, snap.Players)

	// The host leaving disbands the room entirely.
	require.NoError(t, f.broker.LeaveRoom(id, "alice"))
	_, err = f.broker.Status(id, "alice")
	assert.True(t, apperr.Is(err, apperr.ErrRoomNotFound))
}

func TestTeardown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)

	// Forming room: teardown just removes it.
	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.broker.TeardownRoom(id))
	_, err = f.broker.Status(id, "alice")
	assert.True(t, apperr.Is(err, apperr.ErrRoomNotFound))

	// Running room: teardown kills the processes; ports return through the
	// exit path, never synchronously.
	id, err = f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.broker.JoinRoom(id, "bob"))
	_, err = f.broker.StartSession(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, f.ports.FreeCount())

	require.NoError(t, f.broker.TeardownRoom(id))
	require.NoError(t, f.broker.TeardownRoom(id)) // idempotent

	require.Eventually(t, func() bool {
		return f.ports.FreeCount() == 4
	}, time.Second, 5*time.Millisecond)
}

func TestReportResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)
	f.addAccount(t, "alice")
	f.addAccount(t, "bob")

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.broker.JoinRoom(id, "bob"))
	_, err = f.broker.StartSession(ctx, id, "alice")
	require.NoError(t, err)

	// Too early: the session has not completed.
	err = f.broker.ReportResult(ctx, id, "alice", []string{"alice"})
	assert.True(t, apperr.Is(err, apperr.ErrInvalidState))

	for _, h := range f.launcher.handles() {
		f.broker.ReportExit(id, h.ID(), proc.ExitStatus{})
	}

	// Only the host settles results.
	err = f.broker.ReportResult(ctx, id, "bob", []string{"bob"})
	assert.True(t, apperr.Is(err, apperr.ErrAuthorization))

	// Winners must be members.
	err = f.broker.ReportResult(ctx, id, "alice", []string{"mallory"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	require.NoError(t, f.broker.ReportResult(ctx, id, "alice", []string{"alice"}))

	a, err := f.store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	b, err := f.store.GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Wins)
	assert.Equal(t, 1, b.Losses)

	// One settlement per session.
	err = f.broker.ReportResult(ctx, id, "alice", nil)
	assert.True(t, apperr.Is(err, apperr.ErrInvalidState))
}

func TestReportResultDraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)
	f.addAccount(t, "alice")
	f.addAccount(t, "bob")

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.broker.JoinRoom(id, "bob"))
	_, err = f.broker.StartSession(ctx, id, "alice")
	require.NoError(t, err)
	for _, h := range f.launcher.handles() {
		f.broker.ReportExit(id, h.ID(), proc.ExitStatus{})
	}

	require.NoError(t, f.broker.ReportResult(ctx, id, "alice", nil))

	a, err := f.store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	b, err := f.store.GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Draws)
	assert.Equal(t, 1, b.Draws)
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)

	id, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)

	_, _, err = f.broker.Watch(id, "mallory")
	assert.True(t, apperr.Is(err, apperr.ErrAuthorization))

	events, cancel, err := f.broker.Watch(id, "alice")
	require.NoError(t, err)
	defer cancel()

	// First frame is the seeded current state.
	snap := <-events
	assert.Equal(t, domain.SessionForming, snap.State)

	require.NoError(t, f.broker.JoinRoom(id, "bob"))
	snap = <-events
	assert.Equal(t, domain.SessionReady, snap.State)
	assert.Len(t, snap.Players, 2)

	// Terminal state closes the stream.
	require.NoError(t, f.broker.LeaveRoom(id, "alice"))
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
}

func TestListRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPlayerGame(t), 4)

	id1, err := f.broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)
	_, err = f.broker.CreateRoom(ctx, "game-1", "bob")
	require.NoError(t, err)

	assert.Len(t, f.broker.ListRooms(), 2)

	require.NoError(t, f.broker.TeardownRoom(id1))
	assert.Len(t, f.broker.ListRooms(), 1)
}

// Catalog edits after room creation never reach the pinned snapshot.
func TestRoomPinsGameSnapshot(t *testing.T) {
	ctx := context.Background()
	rec := twoPlayerGame(t)
	stub := &mutableCatalog{rec: rec}
	ports, err := portpool.New(25000, 25004)
	require.NoError(t, err)
	broker := session.NewBroker(stub, ports, &fakeLauncher{}, store.NewMemory(), "127.0.0.1")

	id, err := broker.CreateRoom(ctx, "game-1", "alice")
	require.NoError(t, err)

	stub.mu.Lock()
	stub.rec.Name = "Renamed"
	stub.rec.MaxPlayers = 9
	stub.mu.Unlock()

	snap, err := broker.Status(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Battleship", snap.GameName)
	assert.Equal(t, 2, snap.MaxPlayers)
}

type mutableCatalog struct {
	mu  sync.Mutex
	rec domain.GameRecord
}

func (c *mutableCatalog) Get(_ context.Context, id domain.GameID, _ string) (*domain.GameRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.rec
	r.ID = id
	return &r, nil
}

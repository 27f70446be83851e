package session

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/pressplay/arcade/internal/domain"
	"github.com/pressplay/arcade/internal/proc"
	"github.com/pressplay/arcade/internal/store"
)

var errAlreadyInRoom = errors.New("already in room")

// LaunchInfo tells members where their processes connect.
type LaunchInfo struct {
	Host        string         `json:"host"`
	ServerPort  int            `json:"server_port,omitempty"`
	MemberPorts map[string]int `json:"member_ports"`
}

// StartSession drives Forming/Ready -> Launching -> Running. The room mutex
// is held for the whole launch, so a concurrent TeardownRoom waits for the
// attempt to resolve rather than racing it.
//
// Order of operations: compile once (before any lease), then the server
// port and process when the game has a server command, then the member
// clients. Any failure kills the processes already spawned and moves the
// room to Failed; ports return to the pool only once their processes have
// confirmed exit.
func (b *Broker) StartSession(ctx context.Context, id domain.SessionID, requester string) (LaunchInfo, error) {
	r, err := b.room(id)
	if err != nil {
		return LaunchInfo{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tornDown {
		return LaunchInfo{}, apperr.ErrRoomNotFound
	}
	if !r.isMemberLocked(requester) {
		return LaunchInfo{}, apperr.ErrAuthorization
	}
	if r.state != domain.SessionForming && r.state != domain.SessionReady {
		return LaunchInfo{}, apperr.ErrInvalidState
	}
	if len(r.members) < r.game.MinPlayers {
		return LaunchInfo{}, apperr.ErrInvalidState.Wrap(errors.New("not enough players"))
	}

	r.state = domain.SessionLaunching
	r.notifyLocked()

	info, err := b.launchLocked(ctx, r)
	if err != nil {
		r.state = domain.SessionFailed
		r.notifyLocked()
		log.Warn().Str("module", "session").Str("room", string(id)).Err(err).Msg("launch failed")
		return LaunchInfo{}, err
	}

	r.state = domain.SessionRunning
	r.notifyLocked()
	log.Info().Str("module", "session").Str("room", string(id)).
		Int("processes", len(r.procs)).Msg("session running")
	return info, nil
}

// launchLocked performs the compile/lease/spawn sequence; r.mu is held.
func (b *Broker) launchLocked(ctx context.Context, r *Room) (LaunchInfo, error) {
	// Exactly one compile step per launch, before anything is leased.
	if !r.game.CompileCommand.IsZero() {
		if err := b.launcher.RunCompile(ctx, r.game.CompileCommand, r.game.BundleDir); err != nil {
			return LaunchInfo{}, err
		}
	}

	// Ports leased this attempt that no process ended up owning; released
	// immediately on failure. Ports owned by a spawned process come back
	// through its exit report instead.
	var unowned []int
	fail := func(err error) (LaunchInfo, error) {
		for _, h := range r.procs {
			h.Kill()
		}
		for _, p := range unowned {
			b.ports.Release(p)
		}
		r.serverPort = 0
		r.memberPorts = make(map[string]int)
		return LaunchInfo{}, err
	}

	info := LaunchInfo{Host: b.advertisedHost, MemberPorts: make(map[string]int)}

	if r.game.ServerMode() {
		port, err := b.ports.Acquire(string(r.id))
		if err != nil {
			return fail(err)
		}
		unowned = append(unowned, port)
		h, err := b.launcher.Spawn(proc.SpawnSpec{
			Session: r.id,
			Command: r.game.ServerCommand,
			Subs: map[string]string{
				domain.PlaceholderHost: b.advertisedHost,
				domain.PlaceholderPort: strconv.Itoa(port),
			},
			Dir:    r.game.BundleDir,
			OnExit: b.exitReporter(r.id),
		})
		if err != nil {
			return fail(err)
		}
		unowned = unowned[:len(unowned)-1]
		r.serverPort = port
		r.trackLocked(h, port)
		info.ServerPort = port
	}

	for _, member := range r.members {
		subs := map[string]string{domain.PlaceholderHost: b.advertisedHost}
		var port int
		if r.game.ServerMode() {
			// Connect-out game: every client dials the shared server port.
			port = r.serverPort
		} else {
			var err error
			port, err = b.ports.Acquire(string(r.id))
			if err != nil {
				return fail(err)
			}
			unowned = append(unowned, port)
		}
		subs[domain.PlaceholderPort] = strconv.Itoa(port)

		h, err := b.launcher.Spawn(proc.SpawnSpec{
			Session: r.id,
			Command: r.game.LaunchCommand,
			Subs:    subs,
			Dir:     r.game.BundleDir,
			OnExit:  b.exitReporter(r.id),
		})
		if err != nil {
			return fail(err)
		}
		if !r.game.ServerMode() {
			unowned = unowned[:len(unowned)-1]
			r.trackLocked(h, port)
		} else {
			r.trackLocked(h, 0)
		}
		r.memberPorts[member] = port
		info.MemberPorts[member] = port
	}

	return info, nil
}

// trackLocked registers a live process and the port it owns (0 = none).
func (r *Room) trackLocked(h ProcessHandle, port int) {
	r.procs[h.ID()] = h
	r.portOfProc[h.ID()] = port
	r.pending++
}

func (b *Broker) exitReporter(id domain.SessionID) func(procID string, status proc.ExitStatus) {
	return func(procID string, status proc.ExitStatus) {
		b.ReportExit(id, procID, status)
	}
}

// ReportExit is the supervisor's callback. When the last tracked process
// has exited the session settles to Completed or Failed and — only then —
// its ports return to the pool, so no two sessions ever observe the same
// port at once.
func (b *Broker) ReportExit(id domain.SessionID, procID string, status proc.ExitStatus) {
	r, err := b.room(id)
	if err != nil {
		log.Warn().Str("module", "session").Str("room", string(id)).
			Str("proc", procID).Msg("exit for unknown room")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.procs[procID]; !ok {
		return
	}
	if _, dup := r.exits[procID]; dup {
		return
	}
	r.exits[procID] = status
	r.pending--
	if r.pending > 0 {
		return
	}

	// Last exit: settle the session and give the ports back.
	clean := true
	for _, st := range r.exits {
		if !st.Clean() {
			clean = false
			break
		}
	}
	if r.state == domain.SessionRunning && clean {
		r.state = domain.SessionCompleted
	} else if !r.state.Terminal() {
		r.state = domain.SessionFailed
	}
	for _, port := range r.portOfProc {
		if port != 0 {
			b.ports.Release(port)
		}
	}
	r.serverPort = 0
	r.memberPorts = make(map[string]int)
	r.notifyLocked()

	log.Info().Str("module", "session").Str("room", string(id)).
		Str("state", string(r.state)).Msg("session settled")

	if r.state == domain.SessionCompleted && b.stats != nil {
		members := append([]string(nil), r.members...)
		go b.recordPlays(members)
	}
}

func (b *Broker) recordPlays(members []string) {
	ctx := context.Background()
	for _, m := range members {
		if err := b.stats.PutStats(ctx, m, store.StatsDelta{Plays: 1}); err != nil {
			log.Warn().Str("module", "session").Str("player", m).Err(err).Msg("failed to record play")
		}
	}
}

// ReportResult lets the host settle win/loss/draw after a completed game.
// An empty winner list records a draw for everyone.
func (b *Broker) ReportResult(ctx context.Context, id domain.SessionID, reporter string, winners []string) error {
	r, err := b.room(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if reporter != r.host {
		return apperr.ErrAuthorization
	}
	if r.state != domain.SessionCompleted {
		return apperr.ErrInvalidState
	}
	if r.resultSettled {
		return apperr.ErrInvalidState.Wrap(errors.New("result already recorded"))
	}
	winnerSet := make(map[string]bool, len(winners))
	for _, w := range winners {
		if !r.isMemberLocked(w) {
			return apperr.Validation("winners", "winner is not a room member")
		}
		winnerSet[w] = true
	}

	for _, m := range r.members {
		var d store.StatsDelta
		switch {
		case len(winners) == 0:
			d.Draws = 1
		case winnerSet[m]:
			d.Wins = 1
		default:
			d.Losses = 1
		}
		if err := b.stats.PutStats(ctx, m, d); err != nil {
			return apperr.ErrInternal.Wrap(err)
		}
	}
	r.resultSettled = true
	return nil
}

// TeardownRoom force-stops a session. It is idempotent and safe to call in
// any state; concurrently with StartSession it simply waits on the room
// mutex for the launch attempt to resolve, then kills whatever survived.
func (b *Broker) TeardownRoom(id domain.SessionID) error {
	r, err := b.room(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tornDown || r.state.Terminal() {
		return nil
	}

	switch r.state {
	case domain.SessionForming, domain.SessionReady:
		// Nothing leased or spawned yet: the room just goes away.
		b.discardLocked(r)
	default:
		for _, h := range r.procs {
			h.Kill()
		}
		r.tornDown = true
		r.state = domain.SessionFailed
		r.notifyLocked()
	}
	log.Info().Str("module", "session").Str("room", string(id)).Msg("room torn down")
	return nil
}

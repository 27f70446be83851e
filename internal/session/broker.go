// Package session is the orchestration core: it turns catalog entries into
// running game processes and manages multiplayer room lifecycles.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/pressplay/arcade/internal/domain"
	"github.com/pressplay/arcade/internal/portpool"
	"github.com/pressplay/arcade/internal/store"
)

type Broker struct {
	mu    sync.RWMutex
	rooms map[domain.SessionID]*Room

	catalog  CatalogSource
	ports    *portpool.Allocator
	launcher Launcher
	stats    store.Stats

	// Host substituted into {host} when launching clients.
	advertisedHost string
}

func NewBroker(catalog CatalogSource, ports *portpool.Allocator, launcher Launcher, stats store.Stats, advertisedHost string) *Broker {
	return &Broker{
		rooms:          make(map[domain.SessionID]*Room),
		catalog:        catalog,
		ports:          ports,
		launcher:       launcher,
		stats:          stats,
		advertisedHost: advertisedHost,
	}
}

// CreateRoom snapshots the current active record for gameID and opens a
// Forming room with host as its sole member.
func (b *Broker) CreateRoom(ctx context.Context, gameID domain.GameID, host string) (domain.SessionID, error) {
	rec, err := b.catalog.Get(ctx, gameID, "")
	if err != nil {
		return "", err
	}

	id := domain.NewSessionID()
	room := newRoom(id, *rec, host)

	b.mu.Lock()
	b.rooms[id] = room
	b.mu.Unlock()

	log.Info().Str("module", "session").Str("room", string(id)).
		Str("game", string(gameID)).Str("host", host).Msg("room created")
	return id, nil
}

func (b *Broker) room(id domain.SessionID) (*Room, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rooms[id]
	if !ok {
		return nil, apperr.ErrRoomNotFound
	}
	return r, nil
}

// JoinRoom admits player. Joins on the same room are serialized by the room
// mutex and capacity is re-checked under it, so two concurrent joins can
// never both take the last slot.
func (b *Broker) JoinRoom(id domain.SessionID, player string) error {
	r, err := b.room(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tornDown {
		return apperr.ErrRoomNotFound
	}
	if r.state != domain.SessionForming && r.state != domain.SessionReady {
		return apperr.ErrInvalidState
	}
	if r.isMemberLocked(player) {
		return apperr.ErrInvalidState.Wrap(errAlreadyInRoom)
	}
	if len(r.members) >= r.game.MaxPlayers {
		return apperr.ErrRoomFull
	}

	r.members = append(r.members, player)
	if len(r.members) >= r.game.MinPlayers {
		r.state = domain.SessionReady
	}
	r.notifyLocked()

	log.Info().Str("module", "session").Str("room", string(id)).
		Str("player", player).Int("players", len(r.members)).Msg("player joined")
	return nil
}

// LeaveRoom removes player from a room that has not launched. The host
// leaving, or the room emptying, disbands it.
func (b *Broker) LeaveRoom(id domain.SessionID, player string) error {
	r, err := b.room(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tornDown {
		return apperr.ErrRoomNotFound
	}
	if !r.isMemberLocked(player) {
		return apperr.ErrAuthorization
	}
	if r.state != domain.SessionForming && r.state != domain.SessionReady {
		return apperr.ErrInvalidState
	}

	if player == r.host || len(r.members) == 1 {
		b.discardLocked(r)
		log.Info().Str("module", "session").Str("room", string(id)).
			Str("player", player).Msg("room disbanded")
		return nil
	}

	for i, m := range r.members {
		if m == player {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	if len(r.members) < r.game.MinPlayers {
		r.state = domain.SessionForming
	}
	r.notifyLocked()
	log.Info().Str("module", "session").Str("room", string(id)).
		Str("player", player).Msg("player left")
	return nil
}

// Status returns the room view; only members may look inside.
func (b *Broker) Status(id domain.SessionID, requester string) (Snapshot, error) {
	r, err := b.room(id)
	if err != nil {
		return Snapshot{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tornDown && !r.state.Terminal() {
		return Snapshot{}, apperr.ErrRoomNotFound
	}
	if !r.isMemberLocked(requester) {
		return Snapshot{}, apperr.ErrAuthorization
	}
	return r.snapshotLocked(), nil
}

// Watch subscribes to snapshot pushes for the room. The returned cancel is
// safe to call more than once; the channel closes when the room reaches a
// terminal state or the watcher falls behind.
func (b *Broker) Watch(id domain.SessionID, requester string) (<-chan Snapshot, func(), error) {
	r, err := b.room(id)
	if err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isMemberLocked(requester) {
		return nil, nil, apperr.ErrAuthorization
	}
	wid, ch := r.watchLocked()
	// Seed with the current state so watchers do not start blind.
	ch <- r.snapshotLocked()
	return ch, func() { r.unwatch(wid) }, nil
}

// ListRooms snapshots every non-terminal room, for the lobby browser.
func (b *Broker) ListRooms() []Snapshot {
	b.mu.RLock()
	rooms := make([]*Room, 0, len(b.rooms))
	for _, r := range b.rooms {
		rooms = append(rooms, r)
	}
	b.mu.RUnlock()

	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.tornDown && !r.state.Terminal() {
			out = append(out, r.snapshotLocked())
		}
		r.mu.Unlock()
	}
	return out
}

// discardLocked removes a room that never leased anything. Callers hold the
// room mutex.
func (b *Broker) discardLocked(r *Room) {
	r.tornDown = true
	r.notifyLocked()
	for wid, ch := range r.watchers {
		delete(r.watchers, wid)
		close(ch)
	}
	b.mu.Lock()
	delete(b.rooms, r.id)
	b.mu.Unlock()
}

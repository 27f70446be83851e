package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pressplay/arcade/internal/domain"
	"github.com/pressplay/arcade/internal/proc"
)

// Room is one session. All mutation goes through its mutex, so two
// operations on the same room are strictly ordered while different rooms
// proceed in parallel. The game record is a snapshot pinned at creation;
// later catalog edits never reach a live room.
type Room struct {
	mu sync.Mutex

	id      domain.SessionID
	game    domain.GameRecord
	host    string
	members []string // join order
	state   domain.SessionState

	serverPort  int
	memberPorts map[string]int // member -> leased client port
	portOfProc  map[string]int // proc id -> port it owns (0 = none)
	procs       map[string]ProcessHandle
	exits       map[string]proc.ExitStatus
	pending     int

	tornDown      bool
	resultSettled bool

	watchers    map[int]chan Snapshot
	nextWatcher int
}

func newRoom(id domain.SessionID, game domain.GameRecord, host string) *Room {
	return &Room{
		id:          id,
		game:        game,
		host:        host,
		members:     []string{host},
		state:       domain.SessionForming,
		memberPorts: make(map[string]int),
		portOfProc:  make(map[string]int),
		procs:       make(map[string]ProcessHandle),
		exits:       make(map[string]proc.ExitStatus),
		watchers:    make(map[int]chan Snapshot),
	}
}

// Snapshot is the read-only room view served to members and watchers.
type Snapshot struct {
	ID          domain.SessionID    `json:"id"`
	GameID      domain.GameID       `json:"game_id"`
	GameName    string              `json:"game_name"`
	Version     string              `json:"version"`
	Host        string              `json:"host"`
	Players     []string            `json:"players"`
	MinPlayers  int                 `json:"min_players"`
	MaxPlayers  int                 `json:"max_players"`
	State       domain.SessionState `json:"state"`
	ServerPort  int                 `json:"server_port,omitempty"`
	MemberPorts map[string]int      `json:"member_ports,omitempty"`
}

// snapshotLocked builds the view; callers hold r.mu.
func (r *Room) snapshotLocked() Snapshot {
	players := append([]string(nil), r.members...)
	ports := make(map[string]int, len(r.memberPorts))
	for m, p := range r.memberPorts {
		ports[m] = p
	}
	return Snapshot{
		ID:          r.id,
		GameID:      r.game.ID,
		GameName:    r.game.Name,
		Version:     r.game.Version.String(),
		Host:        r.host,
		Players:     players,
		MinPlayers:  r.game.MinPlayers,
		MaxPlayers:  r.game.MaxPlayers,
		State:       r.state,
		ServerPort:  r.serverPort,
		MemberPorts: ports,
	}
}

func (r *Room) isMemberLocked(player string) bool {
	for _, m := range r.members {
		if m == player {
			return true
		}
	}
	return false
}

// notifyLocked pushes the current snapshot to every watcher. A watcher that
// cannot keep up is dropped and its channel closed; callers hold r.mu.
func (r *Room) notifyLocked() {
	snap := r.snapshotLocked()
	for id, ch := range r.watchers {
		select {
		case ch <- snap:
		default:
			delete(r.watchers, id)
			close(ch)
			log.Debug().Str("module", "session").Str("room", string(r.id)).Msg("dropped slow watcher")
		}
	}
	// Terminal rooms produce no further events.
	if r.state.Terminal() {
		for id, ch := range r.watchers {
			delete(r.watchers, id)
			close(ch)
		}
	}
}

// watchLocked registers a watcher channel and returns its id.
func (r *Room) watchLocked() (int, chan Snapshot) {
	id := r.nextWatcher
	r.nextWatcher++
	ch := make(chan Snapshot, 8)
	r.watchers[id] = ch
	return id, ch
}

func (r *Room) unwatch(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.watchers[id]; ok {
		delete(r.watchers, id)
		close(ch)
	}
}

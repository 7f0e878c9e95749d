// Package engine implements the client-side chat synchronization core: it
// keeps an ordered view of the active room's messages, reconciles optimistic
// sends against authoritative echoes from the event stream, and tracks the
// connectivity state gating send availability.
//
// All mutation of engine state happens on one run-loop goroutine. Blocking
// work (store reads, persistence, subscription delivery) runs in separate
// goroutines that post completions back onto the loop; completions carry the
// room id they targeted and are discarded when it no longer matches the
// active room.
package engine

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"roomsync/crypto"
	"roomsync/models"
	"roomsync/storage"
	"roomsync/stream"
)

// Notice operation tags.
const (
	OpBootstrap = "bootstrap"
	OpHistory   = "history"
	OpSend      = "send"
)

// Notice is a one-shot, user-visible failure report scoped to the operation
// that raised it. No noticed failure is retried automatically.
type Notice struct {
	Op  string
	Err error
}

// Options configures a new Engine. Store, Stream, Cipher, Hasher, and an
// Identity with a non-empty ID are required.
type Options struct {
	Identity models.Identity
	Store    storage.Store
	Stream   stream.Stream
	Cipher   crypto.Cipher
	Hasher   crypto.Hasher
	Logger   *zap.Logger

	// HistoryLimit bounds the history window; defaults to
	// storage.DefaultHistoryLimit.
	HistoryLimit int
	// DefaultRoomName is the room a fresh identity is auto-joined to;
	// defaults to models.DefaultRoomName.
	DefaultRoomName string
}

// Engine is the synchronization core. Create with New, drive with Start,
// read through the snapshot accessors, and release with Stop.
type Engine struct {
	identity     models.Identity
	store        storage.Store
	stream       stream.Stream
	cipher       crypto.Cipher
	hasher       crypto.Hasher
	log          *zap.Logger
	historyLimit int
	defaultRoom  string

	calls     chan func()
	closed    chan struct{}
	closeOnce sync.Once

	mu           sync.RWMutex
	rooms        []models.Room
	messages     []models.Message
	activeRoomID string
	connectivity models.Connectivity

	// Owned subscription slot for the active room; teardown before reassign.
	subMu sync.Mutex
	sub   stream.Subscription

	notices chan Notice
}

// New validates options and returns a stopped engine in the connecting state.
func New(opts Options) (*Engine, error) {
	if opts.Identity.ID == "" {
		return nil, errors.New("engine: identity id is required")
	}
	if opts.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if opts.Stream == nil {
		return nil, errors.New("engine: stream is required")
	}
	if opts.Cipher == nil {
		return nil, errors.New("engine: cipher is required")
	}
	if opts.Hasher == nil {
		return nil, errors.New("engine: hasher is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = storage.DefaultHistoryLimit
	}
	defaultRoom := opts.DefaultRoomName
	if defaultRoom == "" {
		defaultRoom = models.DefaultRoomName
	}

	return &Engine{
		identity:     opts.Identity,
		store:        opts.Store,
		stream:       opts.Stream,
		cipher:       opts.Cipher,
		hasher:       opts.Hasher,
		log:          logger,
		historyLimit: historyLimit,
		defaultRoom:  defaultRoom,
		calls:        make(chan func(), 64),
		closed:       make(chan struct{}),
		connectivity: models.StateConnecting,
		notices:      make(chan Notice, 16),
	}, nil
}

// Start launches the run loop and kicks off the directory bootstrap.
func (e *Engine) Start() {
	go e.run()
	go e.loadDirectory()
}

// Stop shuts the run loop down and cancels any live subscription. Safe to
// call more than once.
func (e *Engine) Stop() {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.teardownSubscription()
	})
}

func (e *Engine) run() {
	for {
		select {
		case fn := <-e.calls:
			fn()
		case <-e.closed:
			return
		}
	}
}

// post schedules fn on the run loop; dropped once the engine stops.
func (e *Engine) post(fn func()) {
	select {
	case e.calls <- fn:
	case <-e.closed:
	}
}

// Rooms returns a snapshot of the joined, count-annotated room list.
func (e *Engine) Rooms() []models.Room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Room(nil), e.rooms...)
}

// Messages returns a snapshot of the active room's visible message list.
func (e *Engine) Messages() []models.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Message(nil), e.messages...)
}

// ActiveRoomID returns the id of the active room, empty when none is.
func (e *Engine) ActiveRoomID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeRoomID
}

// Connectivity returns the current readiness state.
func (e *Engine) Connectivity() models.Connectivity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connectivity
}

// CanSend reports whether send and input controls should be enabled.
func (e *Engine) CanSend() bool {
	return e.Connectivity() == models.StateConnected
}

// Notices surfaces operation failures for transient user-visible display.
func (e *Engine) Notices() <-chan Notice {
	return e.notices
}

func (e *Engine) notify(op string, err error) {
	e.log.Warn("operation failed", zap.String("op", op), zap.Error(err))
	select {
	case e.notices <- Notice{Op: op, Err: err}:
	default:
	}
}

// SelectRoom switches the active room. Unknown room ids are ignored.
func (e *Engine) SelectRoom(roomID string) {
	e.post(func() {
		e.mu.RLock()
		known := false
		for _, room := range e.rooms {
			if room.ID == roomID {
				known = true
				break
			}
		}
		e.mu.RUnlock()
		if !known {
			return
		}
		e.setActiveRoom(roomID)
	})
}

// setActiveRoom runs on the loop. It resets connectivity, tears down the
// previous subscription, clears the visible list, and re-establishes history
// load and subscription for the new room.
func (e *Engine) setActiveRoom(roomID string) {
	e.mu.Lock()
	if e.activeRoomID == roomID {
		e.mu.Unlock()
		return
	}
	e.activeRoomID = roomID
	e.messages = nil
	e.connectivity = models.StateConnecting
	e.mu.Unlock()

	e.teardownSubscription()
	e.log.Info("active room changed", zap.String("room_id", roomID))

	go e.loadHistory(roomID)
	go e.openSubscription(roomID)
}

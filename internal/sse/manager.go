package sse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/shelfcache/internal/id"
)

// Defaults for NewManager.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReplaySize        = 256

	queueSize  = 1000
	clientSize = 100
)

// Client is one connected event stream.
type Client struct {
	ConnectedAt time.Time
	Events      chan Event
	Done        chan struct{}
	ID          string
	// shelves filters shelf-scoped events. Empty means every shelf.
	shelves map[string]struct{}
}

func (c *Client) wants(event Event) bool {
	if event.ShelfID == "" || len(c.shelves) == 0 {
		return true
	}
	_, ok := c.shelves[event.ShelfID]
	return ok
}

// offer delivers without blocking and reports whether the event fit.
func (c *Client) offer(event Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		return false
	}
}

// Manager sequences cache change events and fans them out to clients.
// It keeps the most recent events so a reconnecting client can resume from
// the last ID it saw.
type Manager struct {
	clients   map[string]*Client
	queue     chan Event
	logger    *slog.Logger
	history   []Event // ring of sequenced events, oldest at head
	head      int
	lastID    uint64
	heartbeat time.Duration
	wg        sync.WaitGroup
	mu        sync.Mutex

	closeMu sync.RWMutex
	closed  bool
}

// NewManager creates a Manager with default heartbeat and replay sizes.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		clients:   make(map[string]*Client),
		queue:     make(chan Event, queueSize),
		logger:    logger,
		history:   make([]Event, 0, DefaultReplaySize),
		heartbeat: DefaultHeartbeatInterval,
	}
}

// SetHeartbeatInterval overrides the heartbeat period. Call before Start.
func (m *Manager) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		m.heartbeat = d
	}
}

// Start runs the dispatch loop until ctx is canceled or Shutdown drains the queue.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	m.logger.Info("SSE manager starting", "heartbeat", m.heartbeat)
	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			m.dispatch(event)
		case <-ticker.C:
			m.dispatch(NewHeartbeatEvent())
		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is queued and closes every client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		// Start may never have run; deliver leftovers here.
		for event := range m.queue {
			m.dispatch(event)
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("SSE drain timed out, queued events dropped")
	}

	m.closeAllClients()
	m.logger.Info("SSE manager shut down")
	return nil
}

// Emit queues a cache event. Values that are not Events are ignored, so the
// manager can sit behind a generic emitter interface.
func (m *Manager) Emit(event any) {
	evt, ok := event.(Event)
	if !ok {
		m.logger.Debug("ignoring non-SSE event", "type", fmt.Sprintf("%T", event))
		return
	}

	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.queue <- evt:
	default:
		m.logger.Error("SSE queue full, dropping event", "event_type", evt.Type)
	}
}

// dispatch assigns the next ID to non-heartbeat events, records them for
// replay, and offers them to every interested client.
func (m *Manager) dispatch(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.Type != EventHeartbeat {
		m.lastID++
		event.ID = m.lastID
		m.remember(event)
	}

	var delivered, dropped int
	for _, c := range m.clients {
		if !c.wants(event) {
			continue
		}
		if c.offer(event) {
			delivered++
			continue
		}
		dropped++
		m.logger.Warn("dropped event for slow client", "client_id", c.ID, "event_type", event.Type)
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event dispatched",
			"event_id", event.ID,
			"event_type", event.Type,
			"delivered", delivered,
			"dropped", dropped,
		)
	}
}

// remember appends to the replay ring. Callers hold m.mu.
func (m *Manager) remember(event Event) {
	if len(m.history) < cap(m.history) {
		m.history = append(m.history, event)
		return
	}
	m.history[m.head] = event
	m.head = (m.head + 1) % len(m.history)
}

// replayAfter returns remembered events with IDs above after, oldest first.
// complete is false when events past after have already been overwritten.
// Callers hold m.mu.
func (m *Manager) replayAfter(after uint64) (events []Event, complete bool) {
	if after > m.lastID {
		// The ID came from an earlier run of the server.
		return nil, false
	}
	n := len(m.history)
	if n == 0 {
		return nil, true
	}
	oldest := m.history[m.head%n].ID
	complete = after+1 >= oldest
	for i := range n {
		e := m.history[(m.head+i)%n]
		if e.ID > after {
			events = append(events, e)
		}
	}
	return events, complete
}

// Connect registers a client. Shelf-scoped events are delivered only for the
// given shelves; none means every shelf. A non-zero lastEventID queues the
// remembered events the client missed, or a resync event when some of them
// are no longer available.
func (m *Manager) Connect(lastEventID uint64, shelves ...string) (*Client, error) {
	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}

	c := &Client{
		ID:          clientID,
		Events:      make(chan Event, clientSize),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
		shelves:     make(map[string]struct{}, len(shelves)),
	}
	for _, s := range shelves {
		c.shelves[s] = struct{}{}
	}

	m.mu.Lock()
	replayed := 0
	if lastEventID > 0 {
		missed, complete := m.replayAfter(lastEventID)
		if !complete {
			c.offer(NewResyncEvent(m.lastID))
		}
		for _, e := range missed {
			if c.wants(e) && c.offer(e) {
				replayed++
			}
		}
	}
	m.clients[c.ID] = c
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		"client_id", c.ID,
		"watched_shelves", len(shelves),
		"replayed", replayed,
		"total_clients", total,
	)
	return c, nil
}

// Disconnect removes a client and closes its channels.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	total := len(m.clients)
	m.mu.Unlock()
	if !ok {
		return
	}

	close(c.Done)
	close(c.Events)
	m.logger.Info("SSE client disconnected",
		"client_id", clientID,
		"duration", time.Since(c.ConnectedAt),
		"total_clients", total,
	)
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// LastEventID returns the ID of the most recent sequenced event.
func (m *Manager) LastEventID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastID
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.clients {
		close(c.Done)
		close(c.Events)
	}
	clear(m.clients)
}

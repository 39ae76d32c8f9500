package sse

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/eventbus"
	"github.com/lumenlib/lumen-server/internal/id"
	"github.com/lumenlib/lumen-server/internal/metrics"
)

// clientBuffer is the per-client queue; events beyond it are dropped.
const clientBuffer = 100

// Client is one connected stream bound to a library's event bus.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan eventbus.Event
	Done        chan struct{}
	ID          string
	LibraryID   string

	bus       *eventbus.Bus
	sub       eventbus.Subscription
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.bus.Unsubscribe(c.sub)
		close(c.Done)
	})
}

// Manager tracks connected streams.
type Manager struct {
	clients map[string]*Client
	logger  *slog.Logger
	mu      sync.RWMutex

	shutdown bool
}

// NewManager creates a new Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Connect registers a client fed by every event published on bus.
func (m *Manager) Connect(libraryID string, bus *eventbus.Bus) (*Client, error) {
	clientID, err := id.Generate(id.PrefixStream)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		LibraryID:   libraryID,
		EventChan:   make(chan eventbus.Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
		bus:         bus,
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, errors.Wrap(nil, errors.CodeNotInitialized, "event streams are shutting down")
	}
	client.sub = bus.Subscribe(eventbus.All, func(_ context.Context, evt eventbus.Event) error {
		m.deliver(client, evt)
		return nil
	})
	m.clients[client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	metrics.SetEventStreams(total)
	m.logger.Info("event stream connected",
		slog.String("client_id", clientID),
		slog.String("library_id", libraryID),
		slog.Int("total_clients", total))
	return client, nil
}

// deliver never blocks the publisher: a full queue drops the event.
func (m *Manager) deliver(c *Client, evt eventbus.Event) {
	select {
	case <-c.Done:
		return
	default:
	}
	select {
	case c.EventChan <- evt:
	default:
		m.logger.Warn("dropped event for slow client",
			slog.String("client_id", c.ID),
			slog.String("event", evt.Name))
	}
}

// Disconnect removes a client and stops its feed.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, clientID)
	total := len(m.clients)
	m.mu.Unlock()

	client.close()
	metrics.SetEventStreams(total)
	m.logger.Info("event stream disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Int("total_clients", total))
}

// Clients returns an iterator over all connected clients.
func (m *Manager) Clients() iter.Seq[*Client] {
	return func(yield func(*Client) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		for _, client := range m.clients {
			if !yield(client) {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Shutdown closes every client and rejects new ones.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	metrics.SetEventStreams(0)
	if len(clients) > 0 {
		m.logger.Info("all event streams disconnected", slog.Int("clients", len(clients)))
	}
}

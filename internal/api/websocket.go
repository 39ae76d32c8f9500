package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumenlib/lumen-server/internal/dispatch"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/eventbus"
	"github.com/lumenlib/lumen-server/internal/http/response"
	"github.com/lumenlib/lumen-server/internal/id"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMaxMessageSize = 1 << 20
)

// wsRequest is a dispatch message plus an optional correlation id echoed in the reply.
type wsRequest struct {
	ID string `json:"id,omitempty"`
	dispatch.Message
}

// wsReply answers one wsRequest.
type wsReply struct {
	ID string `json:"id,omitempty"`
	response.Envelope
}

// wsEvent forwards a library event.
type wsEvent struct {
	eventbus.Event
}

// wsClient is one websocket connection. Every library it opens forwards its
// events until the library is closed through this connection or the socket goes away.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	raw    *socketSender
	out    sender
	client eventbus.ClientData
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	bus *eventbus.Bus
	sub eventbus.Subscription
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := dispatch.ClientFrom(r.Context())
	if r.Header.Get(headerClientID) == "" {
		client.ClientID = id.ClientID()
	}
	log := s.logger.With(slog.String("client_id", client.ClientID))

	raw := &socketSender{conn: conn, writeWait: wsWriteWait}
	c := &wsClient{
		server: s,
		conn:   conn,
		raw:    raw,
		out:    loggingSender{next: raw, logger: log},
		client: client,
		logger: log,
		subs:   make(map[string]subscription),
	}

	log.Info("websocket connected", slog.String("remote", client.Remote))
	c.run(r.Context())
	log.Info("websocket disconnected")
}

func (c *wsClient) run(parent context.Context) {
	ctx, cancel := context.WithCancel(dispatch.WithClient(context.WithoutCancel(parent), c.client))
	var wg sync.WaitGroup
	wg.Go(func() { c.pingLoop(ctx) })
	defer func() {
		cancel()
		wg.Wait()
		c.unsubscribeAll()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if err := c.out.Send(c.handle(ctx, data)); err != nil {
			return
		}
	}
}

func (c *wsClient) handle(ctx context.Context, data []byte) wsReply {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return wsReply{Envelope: response.Fail(errors.Validationf("malformed message: %v", err))}
	}
	if !c.server.limiter.Allow(clientIP(c.client.Remote)) {
		return wsReply{ID: req.ID, Envelope: response.Envelope{Error: &response.ErrorBody{
			Code:    "RATE_LIMITED",
			Message: "too many requests, please try again later",
		}}}
	}

	result, err := c.server.dispatcher.Dispatch(ctx, req.Message)
	if err != nil {
		return wsReply{ID: req.ID, Envelope: response.Fail(err)}
	}

	switch req.Route() {
	case "library.open":
		c.subscribe(req.LibraryID)
	case "library.close":
		c.unsubscribe(req.LibraryID)
	}
	return wsReply{ID: req.ID, Envelope: response.Ok(result)}
}

func (c *wsClient) subscribe(libraryID string) {
	sess, err := c.server.registry.Get(libraryID)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.subs[libraryID]; ok && existing.bus == sess.EventBus() {
		return
	}
	bus := sess.EventBus()
	sub := bus.Subscribe(eventbus.All, func(_ context.Context, evt eventbus.Event) error {
		return c.out.Send(wsEvent{Event: evt})
	})
	c.subs[libraryID] = subscription{bus: bus, sub: sub}
}

func (c *wsClient) unsubscribe(libraryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.subs[libraryID]; ok {
		s.bus.Unsubscribe(s.sub)
		delete(c.subs, libraryID)
	}
}

func (c *wsClient) unsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for libraryID, s := range c.subs {
		s.bus.Unsubscribe(s.sub)
		delete(c.subs, libraryID)
	}
}

func (c *wsClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.raw.ping(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

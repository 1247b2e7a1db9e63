package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/chanreset/internal/lifecycle"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

const (
	intentGuilds     = 1 << 0
	gatewayReadLimit = 8 << 20 // GUILD_CREATE payloads of large guilds
	reconnectMin     = time.Second
	reconnectMax     = time.Minute
	eventBuffer      = 64
)

var errReconnect = errors.New("discord: gateway requested reconnect")

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Token string
	// URL overrides the address returned by GET /gateway/bot.
	URL string
	// AdoptExisting emits an enter event for every channel seen in
	// GUILD_CREATE, not only for later changes.
	AdoptExisting bool
}

// Gateway keeps a websocket session open and publishes channel membership
// changes as lifecycle events. It reconnects with backoff until stopped.
type Gateway struct {
	client *Client
	config GatewayConfig
	logger *slog.Logger
	events chan lifecycle.Event

	mu      sync.Mutex
	members map[string]lifecycle.Membership

	seq      atomic.Int64
	ready    atomic.Bool
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewGateway creates a Gateway. client resolves the gateway URL when
// config.URL is empty.
func NewGateway(client *Client, config GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:  client,
		config:  config,
		logger:  logger,
		events:  make(chan lifecycle.Event, eventBuffer),
		members: make(map[string]lifecycle.Membership),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Events returns the event stream. It is closed once the Gateway stops.
func (g *Gateway) Events() <-chan lifecycle.Event { return g.events }

// Start launches the session loop in a goroutine.
func (g *Gateway) Start() error {
	go g.loop()
	return nil
}

// Stop closes the session and waits for the loop to exit or ctx to expire.
// It is safe to call Stop multiple times.
func (g *Gateway) Stop(ctx context.Context) error {
	g.stopOnce.Do(func() { close(g.stopCh) })
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrNotReady is returned by Healthy while no session has completed its
// handshake.
var ErrNotReady = errors.New("discord: gateway session not ready")

// Healthy returns nil while a session is established.
func (g *Gateway) Healthy() error {
	if g.ready.Load() {
		return nil
	}
	return ErrNotReady
}

func (g *Gateway) loop() {
	defer close(g.done)
	defer close(g.events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-g.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := reconnectMin
	for {
		err := g.session(ctx)
		g.ready.Store(false)
		if ctx.Err() != nil {
			return
		}

		wait := backoff
		if errors.Is(err, errReconnect) {
			wait = 0
			backoff = reconnectMin
		} else {
			g.logger.Warn("discord gateway session ended", "error", err, "retry_in", wait)
			backoff = min(backoff*2, reconnectMax)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// session runs one connection from dial to disconnect.
func (g *Gateway) session(ctx context.Context) error {
	url := g.config.URL
	if url == "" {
		info, err := g.client.GatewayBot(ctx)
		if err != nil {
			return fmt.Errorf("discord: resolve gateway url: %w", err)
		}
		url = info.URL
	}
	url = strings.TrimSuffix(url, "/") + "/?v=10&encoding=json"

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("discord: dial gateway: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(gatewayReadLimit)

	hello, err := g.read(ctx, conn)
	if err != nil {
		return err
	}
	if hello.Op != opHello {
		return fmt.Errorf("discord: expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil || hd.HeartbeatInterval <= 0 {
		return fmt.Errorf("discord: invalid hello payload")
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go g.heartbeat(hbCtx, conn, time.Duration(hd.HeartbeatInterval)*time.Millisecond)

	if err := g.send(ctx, conn, opIdentify, identifyData{
		Token:   g.config.Token,
		Intents: intentGuilds,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "chanreset",
			Device:  "chanreset",
		},
	}); err != nil {
		return err
	}

	for {
		p, err := g.read(ctx, conn)
		if err != nil {
			return err
		}
		if p.S != nil {
			g.seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			g.dispatch(ctx, p.T, p.D)
		case opHeartbeat:
			if err := g.sendHeartbeat(ctx, conn); err != nil {
				return err
			}
		case opReconnect:
			_ = conn.Close(websocket.StatusServiceRestart, "reconnect requested")
			return errReconnect
		case opInvalidSession:
			_ = conn.Close(websocket.StatusNormalClosure, "invalid session")
			return errors.New("discord: invalid session")
		case opHeartbeatAck:
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.sendHeartbeat(ctx, conn); err != nil {
				g.logger.Debug("discord heartbeat failed", "error", err)
				return
			}
		}
	}
}

func (g *Gateway) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	var seq any
	if s := g.seq.Load(); s > 0 {
		seq = s
	}
	return g.send(ctx, conn, opHeartbeat, seq)
}

func (g *Gateway) read(ctx context.Context, conn *websocket.Conn) (gatewayPayload, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return gatewayPayload{}, fmt.Errorf("discord: read gateway: %w", err)
	}
	var p gatewayPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return gatewayPayload{}, fmt.Errorf("discord: decode gateway payload: %w", err)
	}
	return p, nil
}

func (g *Gateway) send(ctx context.Context, conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("discord: marshal op %d: %w", op, err)
	}
	data, err := json.Marshal(gatewayPayload{Op: op, D: raw})
	if err != nil {
		return fmt.Errorf("discord: marshal op %d: %w", op, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("discord: write op %d: %w", op, err)
	}
	return nil
}

func (g *Gateway) dispatch(ctx context.Context, event string, d json.RawMessage) {
	switch event {
	case "READY":
		g.ready.Store(true)
		g.logger.Info("discord gateway ready")
	case "GUILD_CREATE":
		var guild Guild
		if err := json.Unmarshal(d, &guild); err != nil {
			g.logger.Warn("discord: bad GUILD_CREATE payload", "error", err)
			return
		}
		g.syncGuild(ctx, guild)
	case "CHANNEL_CREATE", "CHANNEL_UPDATE", "CHANNEL_DELETE":
		var ch Channel
		if err := json.Unmarshal(d, &ch); err != nil {
			g.logger.Warn("discord: bad channel payload", "event", event, "error", err)
			return
		}
		if ch.GuildID == "" {
			return
		}
		g.channelEvent(ctx, event, ch)
	}
}

// syncGuild refreshes the membership cache from a full guild snapshot and
// emits events for what changed since the previous snapshot. A first
// snapshot only emits when AdoptExisting is set.
func (g *Gateway) syncGuild(ctx context.Context, guild Guild) {
	var out []lifecycle.Event

	g.mu.Lock()
	seen := make(map[string]bool, len(guild.Channels))
	for _, ch := range guild.Channels {
		seen[ch.ID] = true
		cur := lifecycle.Membership{GroupID: guild.ID, ParentID: ch.ParentID}
		prev, known := g.members[ch.ID]
		g.members[ch.ID] = cur

		switch {
		case !known && g.config.AdoptExisting:
			out = append(out, lifecycle.Event{ResourceID: ch.ID, Current: &cur})
		case known && prev != cur:
			out = append(out, lifecycle.Event{ResourceID: ch.ID, Previous: &prev, Current: &cur})
		}
	}
	for id, m := range g.members {
		if m.GroupID == guild.ID && !seen[id] {
			delete(g.members, id)
			out = append(out, lifecycle.Event{ResourceID: id, Previous: &m})
		}
	}
	g.mu.Unlock()

	g.logger.Info("discord guild available", "guild", guild.ID, "name", guild.Name, "channels", len(guild.Channels))
	for _, ev := range out {
		g.emit(ctx, ev)
	}
}

func (g *Gateway) channelEvent(ctx context.Context, event string, ch Channel) {
	cur := lifecycle.Membership{GroupID: ch.GuildID, ParentID: ch.ParentID}

	g.mu.Lock()
	prev, known := g.members[ch.ID]
	if event == "CHANNEL_DELETE" {
		delete(g.members, ch.ID)
	} else {
		g.members[ch.ID] = cur
	}
	g.mu.Unlock()

	ev := lifecycle.Event{ResourceID: ch.ID}
	switch event {
	case "CHANNEL_CREATE":
		ev.Current = &cur
	case "CHANNEL_UPDATE":
		if known {
			ev.Previous = &prev
		}
		ev.Current = &cur
	case "CHANNEL_DELETE":
		// The payload carries the last known parent.
		ev.Previous = &cur
	}
	g.emit(ctx, ev)
}

func (g *Gateway) emit(ctx context.Context, ev lifecycle.Event) {
	select {
	case g.events <- ev:
	case <-ctx.Done():
	}
}

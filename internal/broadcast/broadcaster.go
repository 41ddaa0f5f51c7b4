package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// Conn is the transport half of a client connection. The websocket handler
// provides the concrete implementation; the broadcaster never touches the
// socket directly.
type Conn interface {
	Send(message []byte) error
	Close() error
}

// Envelope is the outbound message shape. Batched deliveries carry more
// than one event; Compressed marks payloads the transport should compact
// before writing.
type Envelope struct {
	Kind       string        `json:"kind"` // "event" or "batch"
	Events     []model.Event `json:"events"`
	Count      int           `json:"count"`
	Compressed bool          `json:"compressed,omitempty"`
	SentAt     time.Time     `json:"sent_at"`
}

// ConnectionStats a point-in-time view of broadcaster state.
type ConnectionStats struct {
	Connections       int            `json:"connections"`
	DeviceSubscribers map[string]int `json:"device_subscribers"`
	Rooms             map[string]int `json:"rooms"`
	PendingBatch      int            `json:"pending_batch"`
	DroppedEvents     int64          `json:"dropped_events"`
}

// Config broadcaster tunables.
type Config struct {
	BatchSize         int           // flush when the buffer reaches this size
	BatchWindow       time.Duration // or when this much time passed since the first buffered event
	RateLimitPerSec   int           // per event type
	CompressThreshold int           // payload bytes above which Compressed is set
}

// DefaultConfig documented broadcast defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:         10,
		BatchWindow:       50 * time.Millisecond,
		RateLimitPerSec:   100,
		CompressThreshold: 16 * 1024,
	}
}

type client struct {
	id          string
	userID      string
	permissions map[string]struct{} // device ids, "*" for wildcard
	devices     map[string]struct{}
	rooms       map[string]struct{}
	conn        Conn
	lastActive  time.Time
}

func (c *client) permitted(deviceID string) bool {
	if _, ok := c.permissions["*"]; ok {
		return true
	}
	_, ok := c.permissions[deviceID]
	return ok
}

// Broadcaster fans domain events out to connected clients. High-severity
// events are delivered immediately; everything else rides a shared batch
// buffer flushed at BatchSize events or BatchWindow after the first one.
type Broadcaster struct {
	mu         sync.Mutex
	cfg        Config
	clients    map[string]*client
	deviceSubs map[string]map[string]struct{} // device -> connection ids
	rooms      map[string]map[string]struct{} // room -> connection ids
	batch      []model.Event
	batchTimer *time.Timer
	limiter    *rateLimiter
	dropped    int64
	closed     bool
	now        func() time.Time
}

// New creates a broadcaster. Call Close on shutdown to cancel the flush timer.
func New(cfg Config) *Broadcaster {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = 50 * time.Millisecond
	}
	return &Broadcaster{
		cfg:        cfg,
		clients:    make(map[string]*client),
		deviceSubs: make(map[string]map[string]struct{}),
		rooms:      make(map[string]map[string]struct{}),
		limiter:    newRateLimiter(cfg.RateLimitPerSec, time.Second),
		now:        time.Now,
	}
}

// Register adds a connection. permissions is the authenticated user's
// device-permission set from the session layer.
func (b *Broadcaster) Register(connID, userID string, permissions []string, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	perms := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		perms[p] = struct{}{}
	}
	b.clients[connID] = &client{
		id:          connID,
		userID:      userID,
		permissions: perms,
		devices:     make(map[string]struct{}),
		rooms:       make(map[string]struct{}),
		conn:        conn,
		lastActive:  b.now(),
	}
	logger.Infof("client %s connected (user %s)", connID, userID)
}

// Unregister removes a connection and cleans its device and room
// memberships. Empty subscriber sets are dropped entirely.
func (b *Broadcaster) Unregister(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[connID]
	if !ok {
		return
	}
	for deviceID := range c.devices {
		b.dropMemberLocked(b.deviceSubs, deviceID, connID)
	}
	for room := range c.rooms {
		b.dropMemberLocked(b.rooms, room, connID)
	}
	delete(b.clients, connID)
	logger.Infof("client %s disconnected", connID)
}

func (b *Broadcaster) dropMemberLocked(table map[string]map[string]struct{}, key, connID string) {
	members, ok := table[key]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(table, key)
	}
}

// SubscribeToPrinter adds a device subscription. Rejected without state
// change when the user's permission set does not cover the device.
func (b *Broadcaster) SubscribeToPrinter(connID, deviceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[connID]
	if !ok {
		return fmt.Errorf("unknown connection: %s", connID)
	}
	if !c.permitted(deviceID) {
		return fmt.Errorf("user %s has no permission for device %s", c.userID, deviceID)
	}

	c.devices[deviceID] = struct{}{}
	c.lastActive = b.now()
	members, ok := b.deviceSubs[deviceID]
	if !ok {
		members = make(map[string]struct{})
		b.deviceSubs[deviceID] = members
	}
	members[connID] = struct{}{}
	return nil
}

// UnsubscribeFromPrinter removes a device subscription.
func (b *Broadcaster) UnsubscribeFromPrinter(connID, deviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[connID]
	if !ok {
		return
	}
	delete(c.devices, deviceID)
	c.lastActive = b.now()
	b.dropMemberLocked(b.deviceSubs, deviceID, connID)
}

// JoinRoom adds the connection to a named room.
func (b *Broadcaster) JoinRoom(connID, room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[connID]
	if !ok {
		return fmt.Errorf("unknown connection: %s", connID)
	}
	c.rooms[room] = struct{}{}
	members, ok := b.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		b.rooms[room] = members
	}
	members[connID] = struct{}{}
	return nil
}

// LeaveRoom removes the connection from a named room.
func (b *Broadcaster) LeaveRoom(connID, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[connID]
	if !ok {
		return
	}
	delete(c.rooms, room)
	b.dropMemberLocked(b.rooms, room, connID)
}

// Publish routes one event. High-severity events bypass batching; the rest
// join the shared batch buffer. Events over the per-type rate limit are
// dropped and counted, never queued.
func (b *Broadcaster) Publish(event model.Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	if !b.limiter.allow(event.Type) {
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		logger.Warnf("rate limit exceeded for %s events, dropping", event.Type)
		return
	}

	if event.HighSeverity() {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		targets := b.resolveTargetsLocked(event)
		b.mu.Unlock()
		b.deliver(targets, []model.Event{event})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.batch = append(b.batch, event)
	if len(b.batch) >= b.cfg.BatchSize {
		b.flushLocked()
		return
	}
	if b.batchTimer == nil {
		b.batchTimer = time.AfterFunc(b.cfg.BatchWindow, b.flushTimer)
	}
}

func (b *Broadcaster) flushTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// flushLocked drains the batch buffer, grouping events by target room
// ("global" when untargeted) and delivering one aggregated message per
// group. Arrival order is preserved within a group.
func (b *Broadcaster) flushLocked() {
	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
	if len(b.batch) == 0 {
		return
	}
	pending := b.batch
	b.batch = nil

	groups := make(map[string][]model.Event)
	order := make([]string, 0, 4)
	for _, event := range pending {
		key := "global"
		if event.Room != "" {
			key = event.Room
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], event)
	}

	for _, key := range order {
		events := groups[key]
		var targets []*client
		if key == "global" {
			// A mixed global batch may span several devices; the target
			// set is the union of each event's subscribers.
			targets = b.unionTargetsLocked(events)
		} else {
			targets = b.roomTargetsLocked(key)
		}
		go b.deliver(targets, events)
	}
}

func (b *Broadcaster) unionTargetsLocked(events []model.Event) []*client {
	seen := make(map[string]*client)
	for _, event := range events {
		for _, c := range b.resolveTargetsLocked(event) {
			seen[c.id] = c
		}
	}
	out := make([]*client, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out
}

// resolveTargetsLocked: explicit room wins, then device subscribers, then
// every connected client for device-less events.
func (b *Broadcaster) resolveTargetsLocked(event model.Event) []*client {
	if event.Room != "" {
		return b.roomTargetsLocked(event.Room)
	}
	if event.DeviceID != "" {
		members := b.deviceSubs[event.DeviceID]
		out := make([]*client, 0, len(members))
		for connID := range members {
			if c, ok := b.clients[connID]; ok {
				out = append(out, c)
			}
		}
		return out
	}
	out := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		out = append(out, c)
	}
	return out
}

func (b *Broadcaster) roomTargetsLocked(room string) []*client {
	members := b.rooms[room]
	out := make([]*client, 0, len(members))
	for connID := range members {
		if c, ok := b.clients[connID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (b *Broadcaster) deliver(targets []*client, events []model.Event) {
	if len(targets) == 0 || len(events) == 0 {
		return
	}

	envelope := Envelope{
		Kind:   "event",
		Events: events,
		Count:  len(events),
		SentAt: b.now(),
	}
	if len(events) > 1 {
		envelope.Kind = "batch"
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		logger.Errorf("failed to encode broadcast envelope: %v", err)
		return
	}
	if b.cfg.CompressThreshold > 0 && len(data) > b.cfg.CompressThreshold {
		envelope.Compressed = true
		if data, err = json.Marshal(envelope); err != nil {
			logger.Errorf("failed to encode broadcast envelope: %v", err)
			return
		}
	}

	for _, c := range targets {
		if err := c.conn.Send(data); err != nil {
			logger.Warnf("failed to send to client %s: %v", c.id, err)
		}
	}
}

// Typed emitters used by the orchestrator and handlers.

func (b *Broadcaster) BroadcastPrinterStatus(deviceID string, payload interface{}) {
	b.Publish(model.Event{Type: model.EventPrinterStatus, DeviceID: deviceID, Payload: payload})
}

func (b *Broadcaster) BroadcastPrinterProgress(deviceID string, payload interface{}) {
	b.Publish(model.Event{Type: model.EventPrinterProgress, DeviceID: deviceID, Payload: payload})
}

func (b *Broadcaster) BroadcastPrinterError(deviceID string, payload interface{}, severity model.AnomalySeverity) {
	b.Publish(model.Event{Type: model.EventPrinterError, DeviceID: deviceID, Payload: payload, Severity: severity})
}

func (b *Broadcaster) BroadcastAnomaly(deviceID string, anomaly model.Anomaly) {
	b.Publish(model.Event{Type: model.EventAnomalyDetected, DeviceID: deviceID, Payload: anomaly, Severity: anomaly.Severity})
}

func (b *Broadcaster) BroadcastQueueUpdate(payload interface{}) {
	b.Publish(model.Event{Type: model.EventQueueUpdated, Payload: payload})
}

func (b *Broadcaster) BroadcastSystemAlert(message string) {
	b.Publish(model.Event{
		Type:     model.EventSystemAlert,
		Payload:  map[string]interface{}{"message": message},
		Severity: model.SeverityHigh,
	})
}

// GetConnectionStats snapshots current connection and subscription counts.
func (b *Broadcaster) GetConnectionStats() ConnectionStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := ConnectionStats{
		Connections:       len(b.clients),
		DeviceSubscribers: make(map[string]int, len(b.deviceSubs)),
		Rooms:             make(map[string]int, len(b.rooms)),
		PendingBatch:      len(b.batch),
		DroppedEvents:     b.dropped,
	}
	for deviceID, members := range b.deviceSubs {
		stats.DeviceSubscribers[deviceID] = len(members)
	}
	for room, members := range b.rooms {
		stats.Rooms[room] = len(members)
	}
	return stats
}

// Close flushes pending events and cancels the batch timer.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked()
	b.closed = true
}

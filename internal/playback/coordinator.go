package playback

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-voicebatch/internal/batch"
	"github.com/loqalabs/loqa-voicebatch/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Player is a rendered artifact that can be paused.
type Player interface {
	Pause()
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func()

func (f PlayerFunc) Pause() { f() }

// BusPlayer reaches an artifact rendered by a remote client through its pause subject.
type BusPlayer struct {
	conn *nats.Conn
	id   string
	log  *slog.Logger
}

func NewBusPlayer(conn *nats.Conn, artifactID string, log *slog.Logger) *BusPlayer {
	return &BusPlayer{conn: conn, id: artifactID, log: log}
}

func (p *BusPlayer) Pause() {
	data, err := json.Marshal(protocol.PlaybackEvent{ArtifactID: p.id})
	if err != nil {
		p.log.Warn("failed to encode pause request", slogError(err))
		return
	}
	if err := p.conn.Publish(protocol.PlaybackPauseSubject(p.id), data); err != nil {
		p.log.Warn("failed to publish pause request",
			slog.String("artifact_id", p.id),
			slogError(err))
	}
}

// Coordinator keeps at most one registered artifact playing. The most recent start wins.
type Coordinator struct {
	// startMu is held for the whole of Started, pauses included.
	startMu sync.Mutex

	mu      sync.Mutex
	players map[string]Player
	current string
	conn    *nats.Conn
	subs    []*nats.Subscription
	log     *slog.Logger
}

func NewCoordinator(log *slog.Logger) *Coordinator {
	return &Coordinator{
		players: make(map[string]Player),
		log:     log.With(slog.String("component", "playback")),
	}
}

// Register makes p eligible for coordination under id, replacing any previous player.
func (c *Coordinator) Register(id string, p Player) {
	c.mu.Lock()
	c.players[id] = p
	c.mu.Unlock()
}

// Track registers a bus-backed player for id unless one is already registered. It does
// nothing before Listen has attached a connection.
func (c *Coordinator) Track(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackLocked(id)
}

func (c *Coordinator) trackLocked(id string) {
	if c.conn == nil || id == "" {
		return
	}
	if _, ok := c.players[id]; !ok {
		c.players[id] = NewBusPlayer(c.conn, id, c.log)
	}
}

func (c *Coordinator) Unregister(id string) {
	c.mu.Lock()
	delete(c.players, id)
	if c.current == id {
		c.current = ""
	}
	c.mu.Unlock()
}

// Started records id as playing and pauses every other registered player. Unknown ids still
// pause the others, and are tracked when a bus is attached.
//
// Started calls are serialized: a call returns only after its pauses complete, so a pause
// issued for an earlier start never reaches a player after a later Started for it begins.
// Pause must not call Started.
func (c *Coordinator) Started(id string) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	c.current = id
	c.trackLocked(id)
	others := make([]Player, 0, len(c.players))
	for other, p := range c.players {
		if other != id {
			others = append(others, p)
		}
	}
	c.mu.Unlock()

	for _, p := range others {
		p.Pause()
	}
}

// Stopped clears the playing marker if id is current.
func (c *Coordinator) Stopped(id string) {
	c.mu.Lock()
	if c.current == id {
		c.current = ""
	}
	c.mu.Unlock()
}

// Current returns the id last reported as playing.
func (c *Coordinator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Listen attaches conn. Started and stopped events from the bus drive the coordinator, and
// every job reported as succeeded is tracked as a bus-backed player.
func (c *Coordinator) Listen(conn *nats.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	handlers := map[string]func(protocol.PlaybackEvent){
		protocol.SubjectPlaybackStarted: func(evt protocol.PlaybackEvent) { c.Started(evt.ArtifactID) },
		protocol.SubjectPlaybackStopped: func(evt protocol.PlaybackEvent) { c.Stopped(evt.ArtifactID) },
	}
	for subject, handle := range handlers {
		sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
			var evt protocol.PlaybackEvent
			if err := json.Unmarshal(msg.Data, &evt); err != nil {
				c.log.Warn("failed to decode playback event", slogError(err))
				return
			}
			if evt.ArtifactID == "" {
				return
			}
			handle(evt)
		})
		if err != nil {
			c.Close()
			return err
		}
		c.addSub(sub)
	}

	sub, err := conn.Subscribe(protocol.SubjectJobStatusPrefix+".*", func(msg *nats.Msg) {
		var evt protocol.JobStatusEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			c.log.Warn("failed to decode job status", slogError(err))
			return
		}
		if evt.Status == string(batch.StatusSucceeded) {
			c.Track(evt.JobID)
		}
	})
	if err != nil {
		c.Close()
		return err
	}
	c.addSub(sub)
	return nil
}

func (c *Coordinator) addSub(sub *nats.Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

func (c *Coordinator) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

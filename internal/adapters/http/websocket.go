package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/fieldsync/internal/adapters/nats"
	"github.com/samirrijal/fieldsync/internal/pkg/metrics"
)

const wsPingInterval = 30 * time.Second

// wsMessage is sent by clients to change their subscriptions.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "discovered" | "attached" | "all"
	Project string `json:"project"` // attached only, "" = every project
}

// wsReply acknowledges a client message. Exactly one of Status and Error is set.
type wsReply struct {
	Status  string `json:"status,omitempty"`
	Subject string `json:"subject,omitempty"`
	Error   string `json:"error,omitempty"`
}

// wsSubject maps a channel selection onto a NATS subject.
func wsSubject(m wsMessage) (string, bool) {
	switch m.Channel {
	case "", "all":
		return natsadapter.SubjectAll, true
	case "discovered":
		return natsadapter.SubjectDiscovered, true
	case "attached":
		if m.Project == "" {
			return natsadapter.SubjectAttachedAll, true
		}
		return natsadapter.SubjectAttached(m.Project), true
	default:
		return "", false
	}
}

// wsSession is one client connection and its NATS subscriptions. Writes are
// serialized because NATS callbacks, the pinger and the read loop all write.
type wsSession struct {
	conn   *websocket.Conn
	nc     *nats.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	subs    map[string]*nats.Subscription
}

func (s *wsSession) write(kind int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(kind, data)
}

func (s *wsSession) reply(r wsReply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	_ = s.write(websocket.TextMessage, data)
}

// relay forwards event payloads untouched; they are already JSON.
func (s *wsSession) relay(msg *nats.Msg) {
	_ = s.write(websocket.TextMessage, msg.Data)
}

func (s *wsSession) subscribe(subject string) wsReply {
	if _, ok := s.subs[subject]; ok {
		return wsReply{Status: "already subscribed", Subject: subject}
	}
	sub, err := s.nc.Subscribe(subject, s.relay)
	if err != nil {
		return wsReply{Error: "subscribe failed: " + err.Error()}
	}
	s.subs[subject] = sub
	return wsReply{Status: "subscribed", Subject: subject}
}

func (s *wsSession) unsubscribe(subject string) wsReply {
	sub, ok := s.subs[subject]
	if !ok {
		return wsReply{Error: "not subscribed to " + subject}
	}
	_ = sub.Unsubscribe()
	delete(s.subs, subject)
	return wsReply{Status: "unsubscribed", Subject: subject}
}

func (s *wsSession) handle(raw []byte) wsReply {
	var m wsMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return wsReply{Error: "invalid JSON"}
	}
	subject, ok := wsSubject(m)
	if !ok {
		return wsReply{Error: "unknown channel: " + m.Channel}
	}
	switch m.Action {
	case "subscribe":
		return s.subscribe(subject)
	case "unsubscribe":
		return s.unsubscribe(subject)
	default:
		return wsReply{Error: "unknown action: " + m.Action}
	}
}

// keepalive pings until done closes or a write fails.
func (s *wsSession) keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *wsSession) close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

// WebSocketHandler relays site events from NATS to connected clients.
// Every client starts subscribed to all site events and can narrow that with
// {"action":"unsubscribe","channel":"all"} followed by
// {"action":"subscribe","channel":"attached","project":"P1"}.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		s := &wsSession{
			conn:   c,
			nc:     nc,
			logger: slog.Default().With("remote", c.RemoteAddr().String()),
			subs:   make(map[string]*nats.Subscription),
		}
		defer s.close()

		if r := s.subscribe(natsadapter.SubjectAll); r.Error != "" {
			s.logger.Error("ws default subscription failed", "error", r.Error)
			return
		}
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		s.logger.Info("ws client connected")

		done := make(chan struct{})
		defer close(done)
		go s.keepalive(done)

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}
			s.reply(s.handle(raw))
		}
		s.logger.Info("ws client disconnected")
	}
}

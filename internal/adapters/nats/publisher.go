package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fieldsync/internal/core/domain"
)

const (
	StreamName         = "FIELD_SITES"
	SubjectAll         = "fieldsync.sites.>"
	SubjectDiscovered  = "fieldsync.sites.discovered"
	SubjectAttachedAll = "fieldsync.sites.attached.>"
	subjectAttachedFmt = "fieldsync.sites.attached.%s"
)

// SitesDiscovered is published when sites first appear in the displayed set.
type SitesDiscovered struct {
	Sites []domain.Site `json:"sites"`
	Count int           `json:"count"`
	At    time.Time     `json:"at"`
}

// SiteAttached is published when a site is merged into a project.
type SiteAttached struct {
	ProjectID string      `json:"project_id"`
	Site      domain.Site `json:"site"`
	At        time.Time   `json:"at"`
}

// SubjectAttached returns the subject for a project's attach events. Characters
// that NATS treats as token separators or wildcards are replaced.
func SubjectAttached(projectID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, projectID)
	if token == "" {
		token = "_"
	}
	return fmt.Sprintf(subjectAttachedFmt, token)
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	now  func() time.Time
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectAll},
		Retention: nats.InterestPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js, now: time.Now}, nil
}

func (p *Publisher) PublishSitesDiscovered(ctx context.Context, sites []domain.Site) error {
	data, err := json.Marshal(SitesDiscovered{Sites: sites, Count: len(sites), At: p.now().UTC()})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectDiscovered, data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishSiteAttached(ctx context.Context, projectID string, site domain.Site) error {
	data, err := json.Marshal(SiteAttached{ProjectID: projectID, Site: site, At: p.now().UTC()})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectAttached(projectID), data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection for readiness checks and relays.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

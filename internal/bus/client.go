package bus

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-whisper/internal/config"
	"github.com/loqalabs/loqa-whisper/internal/protocol"
	"github.com/nats-io/nats.go"
)

// HeaderRequestID carries the server-assigned request id on mirrored results.
const HeaderRequestID = "Loqa-Request-Id"

// Publisher mirrors transcription results onto a NATS subject. A nil
// *Publisher is valid and publishes nothing.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

func Connect(cfg config.BusConfig, log *slog.Logger) (*Publisher, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	if cfg.Subject == "" {
		return nil, errors.New("no NATS subject configured")
	}

	options := []nats.Option{
		nats.Name("loqa-whisper"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url), slog.String("subject", cfg.Subject))

	return &Publisher{
		conn:    conn,
		subject: cfg.Subject,
		log:     log,
	}, nil
}

// Publish sends result to the configured subject. Delivery is best effort;
// the caller logs failures and carries on.
func (p *Publisher) Publish(requestID string, result protocol.TranscriptionResult) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	if requestID != "" {
		msg.Header.Set(HeaderRequestID, requestID)
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.log.Info("closing NATS connection")
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		p.log.Warn("NATS flush on close failed", slog.String("error", err.Error()))
	}
	p.conn.Close()
}

func (p *Publisher) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

func (p *Publisher) Subject() string {
	if p == nil {
		return ""
	}
	return p.subject
}

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/pkg/logutil"
)

// Adapter implements the MessagingPort interface using NATS. With JetStream
// enabled, every chat event lands in a single persistent stream so late
// subscribers (the WebSocket hub after a reconnect, for instance) can
// replay.
type Adapter struct {
	conn      *nats.Conn
	js        nats.JetStreamContext
	subs      map[string]*nats.Subscription
	subsMutex sync.RWMutex
	logger    *logutil.FieldLogger
}

var _ ports.MessagingPort = (*Adapter)(nil)

// NewAdapter creates a new NATS messaging adapter
func NewAdapter(url string, jsEnabled bool, retentionDays int) (*Adapter, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectBufSize(5*1024*1024),
		nats.Name("chatkit-messaging"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	adapter := &Adapter{
		conn:   conn,
		subs:   make(map[string]*nats.Subscription),
		logger: logutil.WithFields(logutil.Fields{"component": "nats"}),
	}

	if jsEnabled {
		js, err := conn.JetStream(nats.PublishAsyncMaxPending(256))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to get JetStream context: %w", err)
		}
		adapter.js = js

		if err := adapter.setupStream(retentionDays); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to setup JetStream stream: %w", err)
		}
	}

	return adapter, nil
}

// setupStream creates or updates the chat events stream
func (a *Adapter) setupStream(retentionDays int) error {
	cfg := &nats.StreamConfig{
		Name:        "CHAT_EVENTS",
		Subjects:    []string{ports.SubjectAllEvents},
		Retention:   nats.LimitsPolicy,
		MaxAge:      time.Duration(retentionDays) * 24 * time.Hour,
		MaxMsgs:     100000,
		MaxBytes:    1024 * 1024 * 1024, // 1GB
		Storage:     nats.FileStorage,
		Compression: nats.S2Compression,
	}

	info, err := a.js.StreamInfo(cfg.Name)
	if err != nil {
		if err == nats.ErrStreamNotFound {
			if _, err := a.js.AddStream(cfg); err != nil {
				return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
			}
			return nil
		}
		return fmt.Errorf("failed to get stream info for %s: %w", cfg.Name, err)
	}

	if needsUpdate(info.Config, *cfg) {
		if _, err := a.js.UpdateStream(cfg); err != nil {
			return fmt.Errorf("failed to update stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// needsUpdate checks if a stream configuration needs updating
func needsUpdate(existing, desired nats.StreamConfig) bool {
	return existing.MaxAge != desired.MaxAge ||
		existing.MaxMsgs != desired.MaxMsgs ||
		existing.MaxBytes != desired.MaxBytes ||
		existing.Compression != desired.Compression
}

// Publish sends a message to the specified subject
func (a *Adapter) Publish(ctx context.Context, subject string, data []byte) error {
	if a.js != nil {
		if _, err := a.js.PublishAsync(subject, data); err != nil {
			return fmt.Errorf("failed to publish to JetStream subject %s: %w", subject, err)
		}

		select {
		case <-a.js.PublishAsyncComplete():
			return nil
		case <-ctx.Done():
			return fmt.Errorf("publish timeout for subject %s: %w", subject, ctx.Err())
		case <-time.After(5 * time.Second):
			return fmt.Errorf("publish timeout for subject %s", subject)
		}
	}

	if err := a.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// PublishJSON publishes a JSON-serializable object to the subject
func (a *Adapter) PublishJSON(ctx context.Context, subject string, obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal object for subject %s: %w", subject, err)
	}
	return a.Publish(ctx, subject, data)
}

// Subscribe listens for messages on the specified subject
func (a *Adapter) Subscribe(ctx context.Context, subject string, handler ports.MessageHandler) error {
	a.subsMutex.Lock()
	defer a.subsMutex.Unlock()

	if _, exists := a.subs[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	msgHandler := func(msg *nats.Msg) {
		if err := handler(ctx, msg.Subject, msg.Data); err != nil {
			a.logger.Warn("handler error", logutil.Fields{"subject": msg.Subject, "error": err.Error()})
		}
	}

	var sub *nats.Subscription
	var err error

	if a.js != nil {
		sub, err = a.js.Subscribe(subject, msgHandler,
			nats.Durable(fmt.Sprintf("chatkit_%s", sanitizeSubjectForDurable(subject))),
			nats.DeliverNew(),
			nats.AckExplicit(),
		)
	} else {
		sub, err = a.conn.Subscribe(subject, msgHandler)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	a.subs[subject] = sub
	return nil
}

// Unsubscribe stops listening to a subject
func (a *Adapter) Unsubscribe(ctx context.Context, subject string) error {
	a.subsMutex.Lock()
	defer a.subsMutex.Unlock()

	sub, exists := a.subs[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from subject %s: %w", subject, err)
	}

	delete(a.subs, subject)
	return nil
}

// Close closes the messaging connection
func (a *Adapter) Close() error {
	a.subsMutex.Lock()
	defer a.subsMutex.Unlock()

	for subject, sub := range a.subs {
		if err := sub.Unsubscribe(); err != nil {
			a.logger.Warn("error unsubscribing", logutil.Fields{"subject": subject, "error": err.Error()})
		}
	}
	a.subs = make(map[string]*nats.Subscription)

	if a.conn != nil {
		a.conn.Close()
	}
	return nil
}

// Ping checks messaging connectivity
func (a *Adapter) Ping() error {
	if a.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	if !a.conn.IsConnected() {
		return fmt.Errorf("NATS connection is not active")
	}

	rtt, err := a.conn.RTT()
	if err != nil {
		return fmt.Errorf("failed to get RTT: %w", err)
	}
	if rtt > 5*time.Second {
		return fmt.Errorf("high latency detected: %v", rtt)
	}
	return nil
}

// GetConnectionStatus returns detailed connection information
func (a *Adapter) GetConnectionStatus() map[string]interface{} {
	status := make(map[string]interface{})

	if a.conn == nil {
		status["connected"] = false
		status["error"] = "connection is nil"
		return status
	}

	status["connected"] = a.conn.IsConnected()
	status["url"] = a.conn.ConnectedUrl()
	status["server_id"] = a.conn.ConnectedServerId()
	status["server_name"] = a.conn.ConnectedServerName()

	stats := a.conn.Stats()
	status["messages_in"] = stats.InMsgs
	status["messages_out"] = stats.OutMsgs
	status["bytes_in"] = stats.InBytes
	status["bytes_out"] = stats.OutBytes
	status["reconnects"] = stats.Reconnects

	status["jetstream_enabled"] = a.js != nil

	a.subsMutex.RLock()
	status["active_subscriptions"] = len(a.subs)
	a.subsMutex.RUnlock()

	return status
}

// sanitizeSubjectForDurable converts a subject pattern to a valid durable name
func sanitizeSubjectForDurable(subject string) string {
	result := subject
	result = strings.Replace(result, ".", "_", -1)
	result = strings.Replace(result, "*", "star", -1)
	result = strings.Replace(result, ">", "gt", -1)
	return result
}

// FormatSubject formats a subject template with parameters
func FormatSubject(template string, params ...interface{}) string {
	return fmt.Sprintf(template, params...)
}

package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/annel0/chunk-activity-tracker/internal/logging"
)

// NATSConfig настройки подписчика
type NATSConfig struct {
	URL           string
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration
}

// NATSSubscriber получает события драйвера из NATS по субъектам "<prefix>.<type>".
//
// Особенности:
// - Автоматическое переподключение при сбоях
// - Graceful shutdown
// - Ответ на request-reply сообщения результатом обработки
type NATSSubscriber struct {
	conn    *nats.Conn
	config  NATSConfig
	handler *Handler
	logger  *logging.Logger

	mu           sync.Mutex
	subscription *nats.Subscription

	receivedCount int64
	errorsCount   int64
}

// NewNATSSubscriber подключается к NATS; подписка создаётся в Start
func NewNATSSubscriber(config NATSConfig, handler *Handler) (*NATSSubscriber, error) {
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "activity"
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}

	logger := logging.GetIngestLogger()

	opts := []nats.Option{
		nats.Name("chunk-activity-tracker"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSSubscriber{
		conn:    conn,
		config:  config,
		handler: handler,
		logger:  logger,
	}, nil
}

// Subject полный субъект для типа события
func (ns *NATSSubscriber) Subject(eventType string) string {
	return ns.config.SubjectPrefix + "." + eventType
}

// Start подписывается на "<prefix>.*"
func (ns *NATSSubscriber) Start() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.subscription != nil {
		return fmt.Errorf("already subscribed to %s.*", ns.config.SubjectPrefix)
	}

	sub, err := ns.conn.Subscribe(ns.config.SubjectPrefix+".*", ns.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	ns.subscription = sub

	ns.logger.Info("📡 Подписка на события %s.* (%s)", ns.config.SubjectPrefix, ns.config.URL)
	return nil
}

func (ns *NATSSubscriber) handleMessage(msg *nats.Msg) {
	atomic.AddInt64(&ns.receivedCount, 1)

	eventType := msg.Subject[strings.LastIndex(msg.Subject, ".")+1:]
	res, err := ns.handler.Handle(eventType, msg.Data)
	if err != nil {
		atomic.AddInt64(&ns.errorsCount, 1)
	}

	if msg.Reply == "" {
		return
	}

	reply := map[string]interface{}{"result": res}
	if err != nil {
		reply["error"] = err.Error()
	}
	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		ns.logger.Warn("Не удалось ответить на %s: %v", msg.Subject, err)
	}
}

// Close отписывается, дожидается обработки полученных сообщений и закрывает соединение
func (ns *NATSSubscriber) Close() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.subscription != nil {
		if err := ns.subscription.Unsubscribe(); err != nil {
			ns.logger.Error("Failed to unsubscribe: %v", err)
		}
		ns.subscription = nil
	}

	if err := ns.conn.Drain(); err != nil {
		ns.conn.Close()
		return err
	}
	return nil
}

// GetMetrics возвращает метрики подписчика
func (ns *NATSSubscriber) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"received_count": atomic.LoadInt64(&ns.receivedCount),
		"errors_count":   atomic.LoadInt64(&ns.errorsCount),
		"connected":      ns.conn.IsConnected(),
		"status":         ns.conn.Status().String(),
	}
}

// Publisher отправляет события драйвера в NATS; используется внешними
// драйверами и утилитами командной строки
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// NewPublisher подключается к NATS
func NewPublisher(url, prefix string) (*Publisher, error) {
	if prefix == "" {
		prefix = "activity"
	}
	conn, err := nats.Connect(url, nats.Name("chunk-activity-publisher"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{conn: conn, prefix: prefix}, nil
}

// Request отправляет событие и ждёт ответа подписчика
func (p *Publisher) Request(eventType string, event interface{}, timeout time.Duration) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	msg, err := p.conn.Request(p.prefix+"."+eventType, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("request %s.%s: %w", p.prefix, eventType, err)
	}
	return msg.Data, nil
}

// Publish отправляет событие без ожидания ответа
func (p *Publisher) Publish(eventType string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.prefix+"."+eventType, data); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return p.conn.Flush()
}

func (p *Publisher) Close() {
	p.conn.Close()
}

// Package mq 把账本记录的状态变化推送到 RabbitMQ topic 交换机
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blues/stream/internal/config"
	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	reconnectDelay = 3 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher 账本事件发布者
type Publisher interface {
	PublishTx(ctx context.Context, tx *model.TxModel) error
	Close()
}

// TxEvent 账本记录变更消息
type TxEvent struct {
	model.TxResponse
	Timestamp int64 `json:"timestamp"`
}

// RoutingKey tx.<status 小写>, 如 tx.unclaimed
func RoutingKey(status model.TxStatus) string {
	return "tx." + strings.ToLower(string(status))
}

// NewTxEvent 由账本记录构造消息
func NewTxEvent(tx *model.TxModel, now time.Time) TxEvent {
	return TxEvent{TxResponse: model.SerializeTx(tx), Timestamp: now.Unix()}
}

// NewPublisher 未启用时返回空实现
func NewPublisher(cfg config.MQConfig) (Publisher, error) {
	if !cfg.Enabled {
		logger.Info("Ledger event stream disabled")
		return NoopPublisher{}, nil
	}
	return NewRabbitMQ(cfg.URL, cfg.Exchange)
}

// NoopPublisher 不发送任何消息
type NoopPublisher struct{}

func (NoopPublisher) PublishTx(context.Context, *model.TxModel) error { return nil }
func (NoopPublisher) Close()                                          {}

// RabbitMQ 封装（支持自动重连）
type RabbitMQ struct {
	url      string
	exchange string

	conn    *amqp.Connection
	channel *amqp.Channel

	mu          sync.RWMutex
	isConnected bool
	done        chan struct{}
	closeOnce   sync.Once
}

// NewRabbitMQ 创建连接并声明交换机
func NewRabbitMQ(url, exchange string) (*RabbitMQ, error) {
	r := &RabbitMQ{
		url:      url,
		exchange: exchange,
		done:     make(chan struct{}),
	}

	if err := r.connect(); err != nil {
		return nil, err
	}

	go r.monitorConnection()

	return r, nil
}

func (r *RabbitMQ) connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(r.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", r.exchange, err)
	}

	r.conn = conn
	r.channel = ch
	r.isConnected = true
	logger.Info("Connected to RabbitMQ exchange %s", r.exchange)
	return nil
}

// monitorConnection 监控连接状态，断开时自动重连
func (r *RabbitMQ) monitorConnection() {
	for {
		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-r.done:
			return
		case err := <-notifyClose:
			if err != nil {
				logger.Warn("RabbitMQ connection closed: %v", err)
			}

			r.mu.Lock()
			r.isConnected = false
			r.mu.Unlock()

			if !r.reconnect() {
				return
			}
		}
	}
}

func (r *RabbitMQ) reconnect() bool {
	for attempt := 1; ; attempt++ {
		select {
		case <-r.done:
			return false
		case <-time.After(reconnectDelay):
		}

		if err := r.connect(); err != nil {
			logger.Warn("RabbitMQ reconnect attempt %d failed: %v", attempt, err)
			continue
		}
		logger.Info("RabbitMQ reconnected after %d attempts", attempt)
		return true
	}
}

// IsConnected 检查是否已连接
func (r *RabbitMQ) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isConnected
}

// PublishTx 以持久化消息发布账本记录
func (r *RabbitMQ) PublishTx(ctx context.Context, tx *model.TxModel) error {
	r.mu.RLock()
	if !r.isConnected {
		r.mu.RUnlock()
		return fmt.Errorf("RabbitMQ is not connected")
	}
	ch := r.channel
	r.mu.RUnlock()

	body, err := json.Marshal(NewTxEvent(tx, time.Now()))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(ctx, r.exchange, RoutingKey(tx.TxStatus), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    tx.TxHash,
	})
}

// Close 关闭连接
func (r *RabbitMQ) Close() {
	r.closeOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			logger.Warn("Failed to close RabbitMQ channel: %v", err)
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			logger.Warn("Failed to close RabbitMQ connection: %v", err)
		}
	}
	r.isConnected = false
}

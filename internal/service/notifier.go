package service

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/common/mqtt"
)

// ChangeEvent 已提交变更的通知
type ChangeEvent struct {
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  int64     `json:"entity_id"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier 变更通知（仅在事务提交后调用）
type Notifier interface {
	Notify(event ChangeEvent)
}

// NopNotifier 不发送任何通知
type NopNotifier struct{}

func (NopNotifier) Notify(ChangeEvent) {}

// MQTTNotifier 通过 MQTT 发布变更事件
type MQTTNotifier struct {
	client  *mqtt.Client
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewMQTTNotifier 创建 MQTTNotifier
func NewMQTTNotifier(client *mqtt.Client, topic string, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		client:  client,
		topic:   topic,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Notify 发布失败只记录日志，不影响已提交的请求
func (n *MQTTNotifier) Notify(event ChangeEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("Failed to marshal change event", zap.Error(err))
		return
	}
	if err := n.client.Publish(n.topic, false, payload, n.timeout); err != nil {
		n.logger.Warn("Failed to publish change event",
			zap.String("topic", n.topic),
			zap.String("action", event.Action),
			zap.Int64("entity_id", event.EntityID),
			zap.Error(err),
		)
	}
}

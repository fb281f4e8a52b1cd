package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-vision/pkg/mqtt"
)

// mqttPublisher MQTT 发布接口（便于测试替换）
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	PublishWithTimeout(topic string, qos byte, retained bool, payload []byte, timeout time.Duration) error
}

// MQTTSink MQTT 出口，报警发布到固定主题
type MQTTSink struct {
	client mqttPublisher
	topic  string
	qos    byte
}

// NewMQTTSink 创建 MQTT sink
func NewMQTTSink(client *mqtt.Client, topic string, qos byte) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, qos: qos}
}

func (s *MQTTSink) Name() string {
	return "mqtt"
}

func (s *MQTTSink) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}
	// 发布等待不能超过 ctx 截止时间，broker 不可达时及时报错
	if deadline, ok := ctx.Deadline(); ok {
		return s.client.PublishWithTimeout(s.topic, s.qos, false, data, time.Until(deadline))
	}
	return s.client.Publish(s.topic, s.qos, false, data)
}

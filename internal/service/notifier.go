package service

import (
	"yuanfen-go/pkg/kafka"
)

// Notifier 抽象了对下游消息通道的写入，便于在测试中替换。
type Notifier interface {
	// Notify 发送一个通知事件（即发即忘）。
	Notify(event kafka.NotificationEvent)
	// EnqueueRescore 投递一个重评任务。
	EnqueueRescore(task kafka.RescoreTask) error
}

type kafkaNotifier struct{}

// NewKafkaNotifier 创建一个基于 Kafka 的 Notifier。
func NewKafkaNotifier() Notifier {
	return &kafkaNotifier{}
}

func (n *kafkaNotifier) Notify(event kafka.NotificationEvent) {
	kafka.ProduceNotification(event)
}

func (n *kafkaNotifier) EnqueueRescore(task kafka.RescoreTask) error {
	return kafka.ProduceRescoreTask(task)
}

// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"yuanfen-go/internal/config"
	"yuanfen-go/pkg/database"
	"yuanfen-go/pkg/log"
)

// NotificationEvent 是发给下游通知分发器的事件（即发即忘）。
type NotificationEvent struct {
	// Type 取值 mutual_match / match_approved / message_reported
	Type           string    `json:"type"`
	UserID         uint      `json:"userId"`
	PeerID         uint      `json:"peerId,omitempty"`
	MatchID        uint      `json:"matchId,omitempty"`
	ConversationID uint      `json:"conversationId,omitempty"`
	MessageID      uint      `json:"messageId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// RescoreTask 是针对兜底评分匹配的重评任务。
type RescoreTask struct {
	MatchID uint `json:"matchId"`
}

// RescoreProcessor defines the interface for any service that can re-score a match.
// This decouples the Kafka consumer from the concrete service implementation.
type RescoreProcessor interface {
	Process(ctx context.Context, task RescoreTask) error
}

var (
	notificationProducer *kafka.Writer
	rescoreProducer      *kafka.Writer
)

// InitProducers 初始化 Kafka 生产者。
func InitProducers(cfg config.KafkaConfig) {
	notificationProducer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.NotificationTopic,
		Balancer: &kafka.LeastBytes{},
	}
	rescoreProducer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.RescoreTopic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceNotification 发送一个通知事件到 Kafka。
// 通知是即发即忘的：失败只记日志，不影响主流程。
func ProduceNotification(event NotificationEvent) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Errorf("序列化通知事件失败: %v", err)
		return
	}

	err = notificationProducer.WriteMessages(context.Background(),
		kafka.Message{
			Value: eventBytes,
		},
	)
	if err != nil {
		log.Errorf("发送通知事件失败: type=%s, userId=%d, err=%v", event.Type, event.UserID, err)
	}
}

// ProduceRescoreTask 发送一个重评任务到 Kafka。
func ProduceRescoreTask(task RescoreTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return rescoreProducer.WriteMessages(context.Background(),
		kafka.Message{
			Value: taskBytes,
		},
	)
}

// StartRescoreConsumer 启动一个 Kafka 消费者来处理重评任务。
func StartRescoreConsumer(cfg config.KafkaConfig, processor RescoreProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.RescoreTopic,
		GroupID:  "yuanfen-go-rescore",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 重评消费者已启动，正在监听主题 '%s'", cfg.RescoreTopic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break // 退出循环，可能需要重启策略
		}

		var task RescoreTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理重评任务: matchId=%d", task.MatchID)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("处理重评任务失败: matchId=%d, Error: %v", task.MatchID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:rescore:attempts:%d", task.MatchID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("重评任务多次失败(>=3)，提交 offset 终止重试: matchId=%d", task.MatchID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			log.Infof("重评任务处理成功: matchId=%d", task.MatchID)
			// 清理失败计数
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:rescore:attempts:%d", task.MatchID)).Err()
			// 任务处理成功后，手动提交 offset
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}

package redpanda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// errTopicAlreadyExists is the Kafka TOPIC_ALREADY_EXISTS error code.
const errTopicAlreadyExists = 36

// createTopicIfNotExists creates topic through the admin API; an existing topic is not an error.
func createTopicIfNotExists(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	req, err := createTopicRequest(topic, partitions, replicationFactor)
	if err != nil {
		return err
	}
	resp, err := client.Request(ctx, req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	ctr, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}
	return checkCreateTopics(ctr)
}

func createTopicRequest(topic string, partitions int32, replicationFactor int16) (*kmsg.CreateTopicsRequest, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic name cannot be empty")
	}
	if partitions <= 0 {
		return nil, fmt.Errorf("partitions must be greater than 0")
	}
	if replicationFactor <= 0 {
		return nil, fmt.Errorf("replication factor must be greater than 0")
	}
	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000
	t := kmsg.NewCreateTopicsRequestTopic()
	t.Topic = topic
	t.NumPartitions = partitions
	t.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, t)
	return &req, nil
}

func checkCreateTopics(resp *kmsg.CreateTopicsResponse) error {
	for _, t := range resp.Topics {
		switch t.ErrorCode {
		case 0:
			slog.Info("topic created", slog.String("topic", t.Topic))
		case errTopicAlreadyExists:
		default:
			msg := ""
			if t.ErrorMessage != nil {
				msg = *t.ErrorMessage
			}
			return fmt.Errorf("create topic error: %s (code %d)", msg, t.ErrorCode)
		}
	}
	return nil
}

// Package kafka consumes decoded paymaster events. The producer keys records
// by contract address, so per-address ordering holds within a partition.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

type Client struct {
	kcl    *kgo.Client
	logger *zap.SugaredLogger
}

func NewClient(kafkaClient *kgo.Client, logger *zap.SugaredLogger) *Client {
	return &Client{kcl: kafkaClient, logger: logger}
}

func (c *Client) PollEvents(ctx context.Context) ([]*entities.Event, error) {
	fetches := c.kcl.PollRecords(ctx, 1000)
	if errs := fetches.Errors(); len(errs) > 0 {
		// Only non-retryable errors are returned, typically per partition.
		for _, err := range errs {
			c.logger.Errorw("fetch error", "topic", err.Topic, "partition", err.Partition, "error", err.Err)
		}
		return nil, errors.New("fetching records")
	}

	var events []*entities.Event
	iter := fetches.RecordIter()
	for !iter.Done() {
		record := iter.Next()
		ev, err := unmarshalEvent(record)
		if err != nil {
			return nil, errors.Wrapf(err, "unmarshalling record %s", string(record.Value))
		}
		events = append(events, ev)
	}
	return events, nil
}

// AllowRebalance needs to be called after polling because of the
// kgo.BlockRebalanceOnPoll() option.
func (c *Client) AllowRebalance() {
	c.kcl.AllowRebalance()
}

func (c *Client) Commit(ctx context.Context) error {
	return errors.Wrap(c.kcl.CommitUncommittedOffsets(ctx), "committing offsets")
}

func unmarshalEvent(record *kgo.Record) (*entities.Event, error) {
	var ev entities.Event
	if err := json.Unmarshal(record.Value, &ev); err != nil {
		return nil, err
	}
	if ev.Kind == "" || ev.BlockNumber == 0 {
		return nil, errors.Errorf("event record with missing information: %+v", ev)
	}
	return &ev, nil
}

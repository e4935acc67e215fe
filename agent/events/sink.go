package events

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/qstash"
)

// QStashSink forwards events to a QStash destination for out-of-process
// monitors.
type QStashSink struct {
	client *qstash.Client
}

var _ Sink = (*QStashSink)(nil)

func NewQStashSink(client *qstash.Client) *QStashSink {
	return &QStashSink{client: client}
}

func (s *QStashSink) Deliver(ctx context.Context, e Event) error {
	body, err := sonic.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.client.Publish(ctx, body); err != nil {
		return fmt.Errorf("forward event %s#%d: %w", e.RunID, e.Seq, err)
	}
	return nil
}

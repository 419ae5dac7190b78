package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const streamEvents = "trustink.events"

// StreamSink appends events to a redis stream for downstream consumers.
type StreamSink struct {
	rdb    *redis.Client
	stream string
}

func NewStreamSink(rdb *redis.Client) *StreamSink {
	return &StreamSink{rdb: rdb, stream: streamEvents}
}

func (s *StreamSink) Name() string { return "redis-stream" }

func (s *StreamSink) Send(ctx context.Context, e Event) error {
	_, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: 100000,
		Approx: true,
		Values: streamValues(e),
	}).Result()
	return err
}

func streamValues(e Event) map[string]any {
	v := map[string]any{
		"type": string(e.Type),
		"at":   e.At.Unix(),
	}
	set := func(k, val string) {
		if val != "" {
			v[k] = val
		}
	}
	set("submission_id", e.SubmissionID)
	set("certificate_id", e.CertificateID)
	set("verification_id", e.VerificationID)
	set("creator_id", e.CreatorID)
	set("actor_id", e.ActorID)
	set("title", e.Title)
	set("status", e.Status)
	set("notes", e.Notes)
	return v
}

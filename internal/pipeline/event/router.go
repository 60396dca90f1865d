package event

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
	"github.com/coursepilot/coursepilot-backend/internal/utils"
)

// Handler processes one delivered event. A nil return acknowledges the
// message; an error leaves it pending for redelivery.
type Handler func(ctx context.Context, ev Event) error

// Publisher is the outbound half of the router, split out so services and
// workers can be tested against a fake.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Router delivers events over a Redis Streams consumer group: at-least-once,
// unordered across courses. Messages whose delivery count exhausts the
// redelivery budget are moved to a dead-letter stream and acknowledged, never
// auto-retried.
type Router struct {
	log   *logger.Logger
	rdb   *goredis.Client
	group string

	stream     string
	deadStream string
	consumer   string

	maxDeliveries int64
	claimMinIdle  time.Duration
	blockFor      time.Duration
}

func NewRouter(log *logger.Logger, rdb *goredis.Client) (*Router, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}

	stream := strings.TrimSpace(os.Getenv("COURSEGEN_STREAM"))
	if stream == "" {
		stream = "coursegen:events"
	}
	consumer, _ := os.Hostname()
	if strings.TrimSpace(consumer) == "" {
		consumer = "coursegen-worker"
	}

	// Must exceed the worst-case stage invocation (two 90s generation calls
	// plus persistence), or a message still being handled gets reclaimed and
	// delivered a second time while the first handler is mid-flight.
	minIdle := time.Duration(utils.GetEnvAsInt("COURSEGEN_CLAIM_MIN_IDLE_SECONDS", 300, log)) * time.Second

	return &Router{
		log:           log.With("service", "EventRouter"),
		rdb:           rdb,
		group:         "pipeline",
		stream:        stream,
		deadStream:    stream + ":dead",
		consumer:      consumer,
		maxDeliveries: 5,
		claimMinIdle:  minIdle,
		blockFor:      2 * time.Second,
	}, nil
}

func (r *Router) Publish(ctx context.Context, ev Event) error {
	return r.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: r.stream,
		Values: ev.Fields(),
	}).Err()
}

func (r *Router) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Consume runs the delivery loop until ctx is cancelled.
func (r *Router) Consume(ctx context.Context, handle Handler) error {
	if err := r.ensureGroup(ctx); err != nil {
		return err
	}

	reclaimTicker := time.NewTicker(r.claimMinIdle)
	defer reclaimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reclaimTicker.C:
			r.reclaimPending(ctx, handle)
		default:
		}

		streams, err := r.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.group,
			Consumer: r.consumer,
			Streams:  []string{r.stream, ">"},
			Count:    10,
			Block:    r.blockFor,
		}).Result()
		if err == goredis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Warn("XREADGROUP failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				r.dispatch(ctx, handle, msg)
			}
		}
	}
}

func (r *Router) dispatch(ctx context.Context, handle Handler, msg goredis.XMessage) {
	ev, err := FromFields(msg.Values)
	if err != nil {
		// Malformed events can never succeed; dead-letter immediately.
		r.log.Error("Dropping malformed event", "message_id", msg.ID, "error", err)
		r.deadLetter(ctx, msg, err.Error())
		return
	}

	if err := handle(ctx, ev); err != nil {
		// Leave pending; the reclaim pass redelivers it.
		r.log.Warn("Event handling failed, leaving pending",
			"kind", ev.Kind, "course_id", ev.CourseID, "message_id", msg.ID, "error", err)
		return
	}
	if err := r.rdb.XAck(ctx, r.stream, r.group, msg.ID).Err(); err != nil {
		r.log.Warn("XACK failed", "message_id", msg.ID, "error", err)
	}
}

// reclaimPending redelivers messages idle past claimMinIdle and dead-letters
// any whose delivery count exceeded the budget.
func (r *Router) reclaimPending(ctx context.Context, handle Handler) {
	pending, err := r.rdb.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: r.stream,
		Group:  r.group,
		Idle:   r.claimMinIdle,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil && err != goredis.Nil {
		r.log.Warn("XPENDING failed", "error", err)
		return
	}

	for _, p := range pending {
		claimed, err := r.rdb.XClaim(ctx, &goredis.XClaimArgs{
			Stream:   r.stream,
			Group:    r.group,
			Consumer: r.consumer,
			MinIdle:  r.claimMinIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil && err != goredis.Nil {
			r.log.Warn("XCLAIM failed", "message_id", p.ID, "error", err)
			continue
		}
		for _, msg := range claimed {
			if p.RetryCount > r.maxDeliveries {
				r.log.Error("Event exhausted redelivery budget, dead-lettering",
					"message_id", msg.ID, "deliveries", p.RetryCount)
				r.deadLetter(ctx, msg, fmt.Sprintf("exhausted %d deliveries", p.RetryCount))
				continue
			}
			r.dispatch(ctx, handle, msg)
		}
	}
}

func (r *Router) deadLetter(ctx context.Context, msg goredis.XMessage, reason string) {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["dead_reason"] = reason
	values["dead_at"] = time.Now().UTC().Format(time.RFC3339)

	if err := r.rdb.XAdd(ctx, &goredis.XAddArgs{Stream: r.deadStream, Values: values}).Err(); err != nil {
		r.log.Error("Dead-letter XADD failed", "message_id", msg.ID, "error", err)
		return
	}
	if err := r.rdb.XAck(ctx, r.stream, r.group, msg.ID).Err(); err != nil {
		r.log.Warn("Dead-letter XACK failed", "message_id", msg.ID, "error", err)
	}
}

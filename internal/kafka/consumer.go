package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, log: log}
}

// Start fetches until ctx is done. Messages with the same key always land
// on the same worker, so per-entity ordering survives the pool.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	errs := make(chan error, c.workers)
	var wg sync.WaitGroup

	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if err := h(ctx, m); err != nil {
					select {
					case errs <- err:
					default:
					}
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					select {
					case errs <- err:
					default:
					}
				}
			}
		}(jobs[i])
	}
	stop := func() {
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs[Shard(m.Key, c.workers)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}

		// non-blocking drain so a failing handler cannot stall dispatch
		select {
		case e := <-errs:
			c.log.Warn("consumer worker error", zap.String("topic", m.Topic), zap.Error(e))
			time.Sleep(200 * time.Millisecond)
		default:
		}
	}
}

// Shard picks the worker for a message key.
func Shard(key []byte, workers int) int {
	if workers <= 1 {
		return 0
	}
	return int(xxhash.Sum64(key) % uint64(workers))
}

package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer queues messages in memory and writes them from a single loop.
// The topic is set per message so one producer serves every event stream.
type Producer struct {
	w       *kafka.Writer
	log     *zap.Logger
	mu      sync.RWMutex
	closed  bool
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			Async:                  true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Warn("kafka async write failed", zap.Int("messages", len(msgs)), zap.Error(err))
				}
			},
		},
		log:     log,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		defer func() {
			if err := p.w.Close(); err != nil {
				p.log.Warn("kafka writer close", zap.Error(err))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				// flush what is already queued, then stop
				for {
					select {
					case m, ok := <-p.inbox:
						if !ok {
							return
						}
						p.write(m)
					default:
						return
					}
				}
			case m, ok := <-p.inbox:
				if !ok {
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Warn("kafka write failed", zap.String("topic", m.Topic), zap.Error(err))
	}
}

func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("publish on closed producer dropped", zap.String("topic", topic))
		return
	}
	p.inbox <- kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Close stops accepting messages; the loop flushes the rest and exits.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

func (p *Producer) WaitClosed() { <-p.closeCh }

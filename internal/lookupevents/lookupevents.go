// Package lookupevents streams served lookups to Kafka without blocking the
// request path.
package lookupevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/core/observability"
	mylog "github.com/mohammed-shakir/coverage-cache/internal/logger"
)

type Event struct {
	RequestID string    `json:"request_id,omitempty"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	Cell      string    `json:"cell,omitempty"`
	Address   string    `json:"address,omitempty"`
	Mediums   []string  `json:"mediums,omitempty"`
	Covered   bool      `json:"covered"`
	Cache     string    `json:"cache"`
	TS        time.Time `json:"ts"`
}

// partition key: same cell or address lands on the same partition
func (e Event) key() string {
	if e.Cell != "" {
		return e.Cell
	}
	return e.Address
}

type Options struct {
	Topic     string
	QueueSize int
	// CellFor maps point lookups to a spatial bucket; nil leaves Cell empty.
	CellFor func(p model.Point) (string, error)
	Logger  *slog.Logger
}

type Publisher struct {
	topic   string
	cellFor func(model.Point) (string, error)
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
}

func NewPublisher(brokers []string, opts Options) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "coverage-cache"
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 200 * time.Millisecond

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("lookupevents: create async producer: %w", err)
	}
	return NewWithProducer(prod, opts), nil
}

// NewWithProducer wraps an existing producer. The publisher owns it.
func NewWithProducer(prod sarama.AsyncProducer, opts Options) *Publisher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Publisher{
		topic:   opts.Topic,
		cellFor: opts.CellFor,
		logger:  opts.Logger,
		now:     time.Now,
		events:  make(chan Event, opts.QueueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				observability.IncLookupEvent("encode_error")
				p.logger.Warn("lookupevents: marshal error", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.key()),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncLookupEvent("failed")
				p.logger.Warn("lookupevents: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish queues ev, dropping it when the queue is full or the publisher
// is closed.
func (p *Publisher) Publish(ev Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncLookupEvent("dropped")
		return false
	}
	select {
	case p.events <- ev:
		observability.IncLookupEvent("queued")
		return true
	default:
		observability.IncLookupEvent("dropped")
		return false
	}
}

// ObserveLookup turns a served lookup into an event.
func (p *Publisher) ObserveLookup(ctx context.Context, l model.Lookup, covered bool, cacheStatus string) {
	ev := Event{
		RequestID: mylog.RequestID(ctx),
		Address:   l.Address,
		Mediums:   l.Mediums,
		Covered:   covered,
		Cache:     cacheStatus,
		TS:        p.now().UTC(),
	}
	if l.Point != nil {
		lat, lon := l.Point.Lat, l.Point.Lon
		ev.Lat, ev.Lon = &lat, &lon
		if p.cellFor != nil {
			if cell, err := p.cellFor(*l.Point); err == nil {
				ev.Cell = cell
			}
		}
	}
	p.Publish(ev)
}

// Close drains queued events into the producer and closes it.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("lookupevents: close producer: %w", err)
	}
	return nil
}

// README: Batched transition-audit pipeline publishing to Kafka.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// Entry is one applied status transition, as observed by the client.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entityId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Source    string    `json:"source"`
}

// Sink receives transition entries. Log must never block the caller.
type Sink interface {
	Log(Entry)
}

// Nop discards entries; used when no brokers are configured.
type Nop struct{}

func (Nop) Log(Entry) {}

type Processor interface {
	Process(batch []Entry) error
}

// KafkaProcessor publishes batches to a topic via a sync producer.
type KafkaProcessor struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaProcessor(brokers []string, topic string) (*KafkaProcessor, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaProcessor{producer: producer, topic: topic}, nil
}

func (p *KafkaProcessor) Process(batch []Entry) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(batch))
	for _, e := range batch {
		value, err := json.Marshal(e)
		if err != nil {
			continue
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(e.EntityID),
			Value: sarama.ByteEncoder(value),
		})
	}
	return p.producer.SendMessages(msgs)
}

func (p *KafkaProcessor) Close() error {
	return p.producer.Close()
}

type PoolConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ChannelSize int
}

// WorkerPool batches entries off a buffered channel and hands them to its
// processors. Full channel drops the entry rather than blocking the caller.
type WorkerPool struct {
	inputCh    chan Entry
	processors []Processor
	batchSize  int
	timeout    time.Duration

	wg sync.WaitGroup
}

func NewWorkerPool(cfg PoolConfig, processors ...Processor) *WorkerPool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = 256
	}
	return &WorkerPool{
		inputCh:    make(chan Entry, cfg.ChannelSize),
		processors: processors,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
	}
}

func (p *WorkerPool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

func (p *WorkerPool) worker(ctx context.Context) {
	var batch []Entry
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				p.processBatch(batch)
			}
			return
		case e := <-p.inputCh:
			batch = append(batch, e)
			if len(batch) >= p.batchSize {
				if !timer.Stop() {
					<-timer.C
				}
				p.processBatch(batch)
				batch = nil
				timer.Reset(p.timeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				p.processBatch(batch)
				batch = nil
			}
			timer.Reset(p.timeout)
		}
	}
}

func (p *WorkerPool) processBatch(batch []Entry) {
	for _, proc := range p.processors {
		if err := proc.Process(batch); err != nil {
			log.Printf("audit: processing batch: %v", err)
		}
	}
}

func (p *WorkerPool) Log(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case p.inputCh <- e:
	default:
		log.Println("audit: channel full, dropping entry")
	}
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

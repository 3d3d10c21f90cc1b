package bus

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
)

type kafkaSubscription struct {
	pc    sarama.PartitionConsumer
	chans []chan []byte
}

// Kafka implements Bus using a Kafka backend. Each topic maps to a Kafka
// topic consumed from its newest offset, so only messages published while
// subscribed are seen.
type Kafka struct {
	producer sarama.SyncProducer
	consumer sarama.Consumer
	mu       sync.Mutex
	subs     map[string]*kafkaSubscription
}

// NewKafka creates a new Kafka bus connecting to the given brokers. All
// messages are produced to and consumed from partition 0, so topics do not
// need more than one partition.
func NewKafka(brokers []string, cfg *sarama.Config) (*Kafka, error) {
	configureKafka(cfg)
	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, err
	}
	return &Kafka{
		producer: producer,
		consumer: consumer,
		subs:     make(map[string]*kafkaSubscription),
	}, nil
}

// configureKafka normalizes the sarama config: produced messages are
// acknowledged and pinned to partition 0, the only partition Subscribe
// consumes.
func configureKafka(cfg *sarama.Config) {
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewManualPartitioner
}

// Publish implements Bus.Publish.
func (b *Kafka) Publish(ctx context.Context, topic string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := &sarama.ProducerMessage{Topic: topic, Partition: 0, Value: sarama.ByteEncoder(data)}
	_, _, err := b.producer.SendMessage(msg)
	return err
}

// Subscribe implements Bus.Subscribe.
func (b *Kafka) Subscribe(ctx context.Context, topic string) (chan []byte, error) {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	sub := b.subs[topic]
	if sub == nil {
		pc, err := b.consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		sub = &kafkaSubscription{pc: pc, chans: []chan []byte{ch}}
		b.subs[topic] = sub
		go b.dispatch(topic, sub)
	} else {
		sub.chans = append(sub.chans, ch)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), topic, ch)
	}()
	return ch, nil
}

func (b *Kafka) dispatch(topic string, sub *kafkaSubscription) {
	for msg := range sub.pc.Messages() {
		b.mu.Lock()
		chans := append([]chan []byte(nil), sub.chans...)
		b.mu.Unlock()

		for _, c := range chans {
			select {
			case c <- msg.Value:
			default:
			}
		}
	}
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *Kafka) Unsubscribe(ctx context.Context, topic string, ch chan []byte) error {
	b.mu.Lock()
	sub := b.subs[topic]
	if sub == nil {
		b.mu.Unlock()
		return nil
	}
	for i, c := range sub.chans {
		if c == ch {
			sub.chans[i] = sub.chans[len(sub.chans)-1]
			sub.chans = sub.chans[:len(sub.chans)-1]
			close(c)
			break
		}
	}
	if len(sub.chans) == 0 {
		delete(b.subs, topic)
		b.mu.Unlock()
		return sub.pc.Close()
	}
	b.mu.Unlock()
	return nil
}

// Close shuts down the producer and consumer.
func (b *Kafka) Close() error {
	b.mu.Lock()
	for topic, sub := range b.subs {
		_ = sub.pc.Close()
		for _, c := range sub.chans {
			close(c)
		}
		delete(b.subs, topic)
	}
	b.mu.Unlock()
	if err := b.producer.Close(); err != nil {
		_ = b.consumer.Close()
		return err
	}
	return b.consumer.Close()
}

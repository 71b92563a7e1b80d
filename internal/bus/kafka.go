// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"watches/pkg/logger"
)

// Kafka writes asynchronously without acks and reads each subject from its
// own topic with a per-client consumer group, starting at the newest offset.
type Kafka struct {
	brokers []string
	group   string
	writer  *kafka.Writer
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	readers []*kafka.Reader
}

// DialKafka accepts "kafka://host1:9092,host2:9092" or a bare broker list.
// kafka-go connects lazily, so no network traffic happens here.
func DialKafka(url, clientID string) *Kafka {
	brokers := strings.Split(strings.TrimPrefix(url, "kafka://"), ",")
	log := logger.New("Kafka:" + clientID)
	ctx, cancel := context.WithCancel(context.Background())
	return &Kafka{
		brokers: brokers,
		group:   clientID,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireNone,
			Async:                  true,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Warn("dropped %d messages: %v", len(msgs), err)
				}
			},
		},
	}
}

func (k *Kafka) Publish(subject string, data []byte) error {
	return k.writer.WriteMessages(k.ctx, kafka.Message{Topic: subject, Value: data})
}

func (k *Kafka) Subscribe(subjects []string, deliver func([]byte)) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, subject := range subjects {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     k.brokers,
			GroupID:     k.group,
			Topic:       subject,
			MinBytes:    1,
			MaxBytes:    1e6,
			MaxWait:     250 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		})
		k.readers = append(k.readers, r)
		k.wg.Go(func() { k.consume(r, deliver) })
	}
	return nil
}

func (k *Kafka) consume(r *kafka.Reader, deliver func([]byte)) {
	for {
		m, err := r.ReadMessage(k.ctx)
		if err != nil {
			if k.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			k.log.Warn("read %s: %v", r.Config().Topic, err)
			select {
			case <-k.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		deliver(m.Value)
	}
}

func (k *Kafka) Close() error {
	k.cancel()
	k.wg.Wait()
	k.mu.Lock()
	defer k.mu.Unlock()
	var errs []error
	for _, r := range k.readers {
		errs = append(errs, r.Close())
	}
	k.readers = nil
	errs = append(errs, k.writer.Close())
	return errors.Join(errs...)
}

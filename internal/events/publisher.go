package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/catalog-importer/internal/core/observability"
	"github.com/mohammed-shakir/catalog-importer/internal/mapper"
)

type Config struct {
	Brokers      []string
	Topic        string
	Res          int
	DefaultLayer string
}

// Imported describes one product the catalog just accepted.
type Imported struct {
	ID         string
	Name       string
	Collection string
	Footprint  orb.MultiPolygon
	// Geometry is Footprint already encoded as GeoJSON.
	Geometry json.RawMessage
}

type Publisher struct {
	prod         sarama.SyncProducer
	topic        string
	res          int
	defaultLayer string
	cells        mapper.Interface
	log          *slog.Logger
	now          func() time.Time
}

func NewPublisher(cfg Config, log *slog.Logger, cells mapper.Interface) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: at least one kafka broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("events: topic is required")
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.ClientID = Source
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3

	prod, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("events: create sync producer: %w", err)
	}
	return NewWithProducer(prod, cfg, log, cells), nil
}

// NewWithProducer wraps an existing producer. cells may be nil, in which case
// events carry only the footprint.
func NewWithProducer(prod sarama.SyncProducer, cfg Config, log *slog.Logger, cells mapper.Interface) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	layer := cfg.DefaultLayer
	if layer == "" {
		layer = "products"
	}
	return &Publisher{
		prod:         prod,
		topic:        cfg.Topic,
		res:          cfg.Res,
		defaultLayer: layer,
		cells:        cells,
		log:          log,
		now:          time.Now,
	}
}

// ProductImported sends one insert event and waits for the broker ack.
func (p *Publisher) ProductImported(ctx context.Context, im Imported) error {
	ev := Event{
		Version:   1,
		Op:        OpInsert,
		Layer:     im.Collection,
		TS:        p.now().UTC(),
		FeatureID: im.ID,
		Name:      im.Name,
		Source:    Source,
		Geometry:  im.Geometry,
	}
	if ev.Layer == "" {
		ev.Layer = p.defaultLayer
	}
	if p.cells != nil && len(im.Footprint) > 0 {
		cells, res, err := p.cells.Cover(im.Footprint, p.res)
		if err != nil {
			p.log.WarnContext(ctx, "h3 cover failed, publishing without cells", "err", err)
		} else {
			ev.H3Cells, ev.Res = cells, &res
		}
	}
	if err := ev.Validate(); err != nil {
		observability.IncChangeEvent(err)
		return fmt.Errorf("events: invalid event: %w", err)
	}

	b, err := json.Marshal(ev)
	if err != nil {
		observability.IncChangeEvent(err)
		return fmt.Errorf("events: marshal: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(b),
	}
	if im.ID != "" {
		msg.Key = sarama.StringEncoder(im.ID)
	}

	partition, offset, err := p.prod.SendMessage(msg)
	observability.IncChangeEvent(err)
	if err != nil {
		return fmt.Errorf("events: send to %s: %w", p.topic, err)
	}
	p.log.DebugContext(ctx, "change event published",
		"topic", p.topic, "partition", partition, "offset", offset, "cells", len(ev.H3Cells))
	return nil
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}

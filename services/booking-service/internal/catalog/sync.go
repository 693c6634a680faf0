package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/agendei/libs/kafkax"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// Topics of the catalog feed published by the business service.
const (
	TopicBusinessUpserted = "catalog.business.upserted.v1"
	TopicProviderUpserted = "catalog.provider.upserted.v1"
	TopicServiceUpserted  = "catalog.service.upserted.v1"
)

var SyncTopics = []string{TopicBusinessUpserted, TopicProviderUpserted, TopicServiceUpserted}

type businessEvent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

type providerEvent struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
}

type serviceEvent struct {
	ID              string `json:"id"`
	ProviderID      string `json:"provider_id"`
	BusinessID      string `json:"business_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	PriceMinor      int64  `json:"price_minor"`
	DurationMinutes int    `json:"duration_minutes"`
	Active          *bool  `json:"active"`
}

// Syncer mirrors business, provider and service records from the catalog feed into the
// local store. Every event is a full upsert, so replays are harmless.
type Syncer struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Booking
}

func NewSyncer(store storage.Store, logger *slog.Logger, m *metrics.Booking) *Syncer {
	return &Syncer{store: store, logger: logger, metrics: m}
}

func (s *Syncer) Handle(ctx context.Context, msg kafka.Message) error {
	eventType := kafkax.ExtractEventMeta(msg).EventType
	err := s.apply(ctx, eventType, msg.Value)
	outcome := "applied"
	if err != nil {
		outcome = "failed"
	}
	s.metrics.SyncEvent(eventType, outcome)
	return err
}

func (s *Syncer) apply(ctx context.Context, eventType string, body []byte) error {
	switch eventType {
	case TopicBusinessUpserted:
		var evt businessEvent
		if err := decode(body, &evt); err != nil {
			return err
		}
		if strings.TrimSpace(evt.ID) == "" {
			return errMissingID
		}
		b := model.Business{ID: evt.ID, Name: strings.TrimSpace(evt.Name), Active: evt.Active == nil || *evt.Active}
		return s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.UpsertBusiness(ctx, b)
		})

	case TopicProviderUpserted:
		var evt providerEvent
		if err := decode(body, &evt); err != nil {
			return err
		}
		if strings.TrimSpace(evt.ID) == "" {
			return errMissingID
		}
		p := model.Provider{ID: evt.ID, BusinessID: strings.TrimSpace(evt.BusinessID), Name: strings.TrimSpace(evt.Name)}
		return s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.UpsertProvider(ctx, p)
		})

	case TopicServiceUpserted:
		var evt serviceEvent
		if err := decode(body, &evt); err != nil {
			return err
		}
		if strings.TrimSpace(evt.ID) == "" {
			return errMissingID
		}
		if evt.DurationMinutes <= 0 {
			return fmt.Errorf("service %s: invalid duration %d", evt.ID, evt.DurationMinutes)
		}
		svc := model.Service{
			ID:              evt.ID,
			BusinessID:      strings.TrimSpace(evt.BusinessID),
			ProviderID:      strings.TrimSpace(evt.ProviderID),
			Title:           strings.TrimSpace(evt.Title),
			Description:     evt.Description,
			PriceMinor:      evt.PriceMinor,
			DurationMinutes: evt.DurationMinutes,
			Active:          evt.Active == nil || *evt.Active,
		}
		return s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.SaveService(ctx, svc)
		})

	default:
		s.logger.Warn("catalog event ignored", "event_type", eventType)
		return nil
	}
}

var errMissingID = errors.New("catalog event without id")

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode catalog event: %w", err)
	}
	return nil
}

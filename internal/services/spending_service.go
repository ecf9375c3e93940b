package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Imaginaryverse/spending-habits/internal/amqp"
	"github.com/Imaginaryverse/spending-habits/internal/core"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
	"github.com/Imaginaryverse/spending-habits/internal/storage"
)

var ErrUnknownCategory = errors.New("unknown category")

// EventPublisher announces item changes to other processes.
type EventPublisher interface {
	PublishSpendingEvent(ctx context.Context, evt *amqp.SpendingEvent) error
}

// Invalidator drops anything derived from a user's items.
type Invalidator interface {
	Invalidate(userID string)
}

// SpendingStore is the part of the record store the spending service writes through.
type SpendingStore interface {
	storage.ItemReader
	storage.ItemWriter
	storage.CategoryReader
}

// SpendingService orchestrates item writes across the store and AMQP.
type SpendingService struct {
	store        SpendingStore
	publisher    EventPublisher
	invalidators []Invalidator
	logger       *applog.Logger
	events       *applog.StructuredLogger
}

// NewSpendingService wires the service. publisher may be nil, in which case
// no events are sent.
func NewSpendingService(store SpendingStore, publisher EventPublisher, logger *applog.Logger, invalidators ...Invalidator) *SpendingService {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSpending)
	return &SpendingService{
		store:        store,
		publisher:    publisher,
		invalidators: invalidators,
		logger:       logger,
		events:       applog.NewStructuredLogger(logger),
	}
}

func (s *SpendingService) Categories(ctx context.Context) ([]core.SpendingCategory, error) {
	return s.store.ListCategories(ctx)
}

func (s *SpendingService) List(ctx context.Context, filter core.ItemFilter) ([]core.SpendingItem, error) {
	if filter.UserID == "" {
		return nil, core.ErrEmptyUser
	}
	return s.store.FetchSpendingItems(ctx, filter)
}

func (s *SpendingService) Get(ctx context.Context, userID, id string) (core.SpendingItem, error) {
	return s.store.GetSpendingItem(ctx, userID, id)
}

// Create validates and stores a new item, then publishes a created event.
func (s *SpendingService) Create(ctx context.Context, item core.SpendingItem) (core.SpendingItem, error) {
	item = normalize(item)
	if err := s.check(ctx, item); err != nil {
		return core.SpendingItem{}, err
	}

	created, err := s.store.CreateSpendingItem(ctx, item)
	if err != nil {
		return core.SpendingItem{}, fmt.Errorf("save item: %w", err)
	}

	s.afterWrite(ctx, applog.OpCreate, amqp.EventItemCreated, created)
	return created, nil
}

// Update replaces the editable fields of an existing item owned by item.UserID.
func (s *SpendingService) Update(ctx context.Context, item core.SpendingItem) (core.SpendingItem, error) {
	if item.ID == "" {
		return core.SpendingItem{}, core.ErrNotFound
	}
	item = normalize(item)
	if err := s.check(ctx, item); err != nil {
		return core.SpendingItem{}, err
	}

	updated, err := s.store.UpdateSpendingItem(ctx, item)
	if err != nil {
		return core.SpendingItem{}, fmt.Errorf("update item: %w", err)
	}

	s.afterWrite(ctx, applog.OpUpdate, amqp.EventItemUpdated, updated)
	return updated, nil
}

func (s *SpendingService) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.store.GetSpendingItem(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSpendingItem(ctx, userID, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	s.afterWrite(ctx, applog.OpDelete, amqp.EventItemDeleted, existing)
	return nil
}

func (s *SpendingService) check(ctx context.Context, item core.SpendingItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if _, err := s.store.GetCategory(ctx, item.CategoryID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, item.CategoryID)
		}
		return fmt.Errorf("lookup category: %w", err)
	}
	return nil
}

// afterWrite runs once the store accepted the change. Nothing here can fail
// the request: the item is already saved.
func (s *SpendingService) afterWrite(ctx context.Context, op string, t amqp.EventType, item core.SpendingItem) {
	for _, inv := range s.invalidators {
		inv.Invalidate(item.UserID)
	}

	s.events.LogItemChanged(ctx, op, item.UserID, item.ID, item.CategoryID, item.Amount)

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping spending event")
		return
	}
	if err := s.publisher.PublishSpendingEvent(ctx, amqp.NewSpendingEvent(t, item)); err != nil {
		fields := applog.NewFields().WithOperation(applog.OpPublish).WithError(err)
		fields[applog.FieldEventType] = string(t)
		fields[applog.FieldItemID] = item.ID
		s.logger.ErrorContext(ctx, "Failed to publish spending event", fields.ToSlice()...)
	}
}

func normalize(item core.SpendingItem) core.SpendingItem {
	item.Title = strings.TrimSpace(item.Title)
	item.Comment = strings.TrimSpace(item.Comment)
	item.CategoryID = strings.TrimSpace(item.CategoryID)
	return item
}

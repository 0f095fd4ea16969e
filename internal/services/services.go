// Package services holds the ledger's business logic: the transaction
// engine, wallet operations, campaign finance handlers, completion
// evaluation and settlement, and the admin overrides.
package services

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Lets gt/gte/lt tags work on money fields.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func validateInput(input interface{}) error {
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return models.BadRequest("invalid %s: failed on %q", fe.Field(), fe.Tag())
		}
		return models.BadRequest("invalid input: %v", err)
	}
	return nil
}

func requirePositive(name string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return models.BadRequest("%s must be greater than zero", name)
	}
	return nil
}

// eventEmitter publishes domain events. Failures are logged, never returned.
type eventEmitter struct {
	publisher ports.EventPublisher
	log       *logger.Logger
	nowFn     func() time.Time
}

func newEventEmitter(publisher ports.EventPublisher, log *logger.Logger) *eventEmitter {
	return &eventEmitter{publisher: publisher, log: log, nowFn: time.Now}
}

func (e *eventEmitter) emit(ctx context.Context, eventType, aggregateID string, payload map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}
	event := models.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  e.nowFn().UTC(),
		Payload:     payload,
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.log.Warnw("failed to publish event", "type", eventType, "aggregate_id", aggregateID, "error", err)
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

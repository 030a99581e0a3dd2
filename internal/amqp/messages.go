package amqp

import (
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"monee/internal/core"
)

const contentTypeJSON = "application/json"

var errEmptyBody = errors.New("empty message body")

// newPublishing wraps a record event in a persistent JSON message.
func newPublishing(ev core.RecordEvent) (amqp091.Publishing, error) {
	body, err := ev.ToJSON()
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Type:         string(ev.Type),
		MessageId:    ev.ID,
		Body:         body,
	}, nil
}

// decodeDelivery extracts the record event carried by a delivery.
func decodeDelivery(d amqp091.Delivery) (core.RecordEvent, error) {
	if len(d.Body) == 0 {
		return core.RecordEvent{}, errEmptyBody
	}
	ev, err := core.RecordEventFromJSON(d.Body)
	if err != nil {
		return core.RecordEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Type == "" {
		return core.RecordEvent{}, errors.New("event without type")
	}
	return ev, nil
}

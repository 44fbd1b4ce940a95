package kafka

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dukex/flowrun/pkg/eventbus"
)

func publishMessage(
	ctx context.Context,
	logger *slog.Logger,
	writer messageWriter,
	topic string,
	key string,
	body []byte,
) error {
	logger.DebugContext(ctx, "Publishing message", "topic", topic, "key", key)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]kafkago.Header, 0, len(carrier)+1)

	for k, v := range carrier {
		headers = append(headers, kafkago.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	headers = append(headers, kafkago.Header{
		Key:   eventbus.KeyMetadata,
		Value: []byte(key),
	})

	publishCtx := context.WithoutCancel(ctx)

	return writer.WriteMessages(publishCtx, kafkago.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   body,
		Headers: headers,
	})
}

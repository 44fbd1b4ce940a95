package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/otelhelper"
)

var errRedeliver = errors.New("redeliver requested")

type consumer struct {
	logger     *slog.Logger
	reader     messageReader
	tracer     trace.Tracer
	handler    eventbus.Handler
	newBackOff func() backoff.BackOff
}

func (c *consumer) run(ctx context.Context) {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				c.logger.InfoContext(ctx, "Stopping consumer")

				return
			}

			c.logger.ErrorContext(ctx, "Failed to fetch message", "error", err)

			continue
		}

		c.process(ctx, message)
	}
}

func (c *consumer) process(ctx context.Context, message kafkago.Message) {
	carrier := propagation.MapCarrier{}
	for _, header := range message.Headers {
		carrier[header.Key] = string(header.Value)
	}

	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)

	msgCtx, span := otelhelper.StartSpan(msgCtx, c.tracer, message.Topic+" consume",
		attribute.String(otelhelper.MessageKeyKey, string(message.Key)),
		attribute.String(otelhelper.TopicKey, message.Topic),
	)
	defer span.End()

	logger := c.logger.With("partition", message.Partition, "offset", message.Offset)

	msg := eventbus.Message{
		ID:        message.Topic + "/" + strconv.Itoa(message.Partition) + "/" + strconv.FormatInt(message.Offset, 10),
		Topic:     message.Topic,
		Key:       string(message.Key),
		Body:      message.Value,
		Partition: message.Partition,
		Offset:    message.Offset,
	}

	decision := eventbus.Commit

	err := backoff.Retry(func() error {
		decision = c.handler(msgCtx, msg)
		if decision == eventbus.Redeliver {
			logger.WarnContext(msgCtx, "Handler asked for redelivery")

			return errRedeliver
		}

		return nil
	}, backoff.WithContext(c.newBackOff(), ctx))

	switch {
	case err != nil:
		logger.ErrorContext(msgCtx, "Giving up on message without commit", "error", err)
		otelhelper.SetError(span, err)

		return
	case decision == eventbus.Skip:
		logger.WarnContext(msgCtx, "Skipping message without commit")

		return
	}

	if err := c.reader.CommitMessages(ctx, message); err != nil {
		logger.ErrorContext(msgCtx, "Failed to commit message", "error", err)
		otelhelper.SetError(span, err)
	}
}

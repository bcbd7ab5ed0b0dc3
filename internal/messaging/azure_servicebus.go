package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"github.com/carlosccorreia5/gestao-saladas-sunset/config"
)

// MessageHandler processes one received message. A returned error abandons
// the message for redelivery.
type MessageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage) error

// AzureServiceBus receives production request messages from the queue
type AzureServiceBus struct {
	client    *azservicebus.Client
	queueName string
}

// NewAzureServiceBus creates a new Azure Service Bus consumer
func NewAzureServiceBus(cfg config.AzureConfig) (*AzureServiceBus, error) {
	if cfg.QueueConnStr == "" {
		return nil, fmt.Errorf("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	return &AzureServiceBus{
		client:    client,
		queueName: cfg.QueueName,
	}, nil
}

// ProcessMessages receives from the queue until the context is cancelled,
// handing each message to the handler. Handled messages are completed;
// failed ones are abandoned and redelivered.
func (b *AzureServiceBus) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	receiver, err := b.client.NewReceiverForQueue(b.queueName, nil)
	if err != nil {
		return fmt.Errorf("failed to create Service Bus receiver: %w", err)
	}
	defer receiver.Close(context.Background())

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to receive messages, retrying")
			time.Sleep(time.Second)
			continue
		}

		for _, message := range messages {
			if err := handler(ctx, message); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to process message")
				if abandonErr := receiver.AbandonMessage(ctx, message, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Str("message_id", message.MessageID).Msg("Failed to abandon message")
				}
				continue
			}

			if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to complete message")
			}
		}
	}
}

// Close closes the Service Bus client
func (b *AzureServiceBus) Close() error {
	if b.client != nil {
		return b.client.Close(context.Background())
	}
	return nil
}

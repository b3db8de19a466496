package iot

import (
	"context"
	"log"
	"time"

	"parkwatch/internal/config"
	"parkwatch/internal/service"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSConsumer long-polls the device event queue and hands each message to
// the dispatcher. A message is deleted only after successful processing;
// failed messages reappear after the visibility timeout.
type SQSConsumer struct {
	sqsClient    *sqs.Client
	queueURL     string
	deviceEvents *service.DeviceEventService
}

func NewSQSConsumer(client *sqs.Client, cfg *config.Config, deviceEvents *service.DeviceEventService) *SQSConsumer {
	return &SQSConsumer{
		sqsClient:    client,
		queueURL:     cfg.SQSEventQueueURL,
		deviceEvents: deviceEvents,
	}
}

func (c *SQSConsumer) Start(ctx context.Context) {
	log.Printf("SQS Consumer: listening on queue %s", c.queueURL)
	for {
		select {
		case <-ctx.Done():
			log.Println("SQS Consumer: context cancelled, stopping.")
			return
		default:
			receiveInput := &sqs.ReceiveMessageInput{
				QueueUrl:            &c.queueURL,
				MaxNumberOfMessages: 10,
				WaitTimeSeconds:     20,
				VisibilityTimeout:   60,
			}

			result, err := c.sqsClient.ReceiveMessage(ctx, receiveInput)
			if err != nil {
				log.Printf("SQS Consumer: receive failed: %v", err)
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					log.Println("SQS Consumer: context cancelled while waiting for retry.")
					return
				}
				continue
			}

			if len(result.Messages) == 0 {
				continue
			}

			log.Printf("SQS Consumer: received %d message(s)", len(result.Messages))

			for _, message := range result.Messages {
				if message.Body == nil {
					log.Println("SQS Consumer: empty message body, deleting.")
					c.deleteMessage(ctx, message.ReceiptHandle)
					continue
				}

				processingErr := c.deviceEvents.HandleDeviceEvent(ctx, *message.Body)
				if processingErr == nil {
					c.deleteMessage(ctx, message.ReceiptHandle)
				} else {
					log.Printf("SQS Consumer: message %s failed: %v. It will be redelivered after the visibility timeout.",
						*message.MessageId, processingErr)
				}
			}
		}
	}
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		log.Println("SQS Consumer: missing receipt handle, cannot delete message.")
		return
	}
	_, delErr := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: receiptHandle,
	})
	if delErr != nil {
		log.Printf("SQS Consumer: delete failed: %v", delErr)
	}
}

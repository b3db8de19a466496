package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"parkwatch/internal/config"
	"parkwatch/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/google/uuid"
)

// GateService publishes barrier commands to the devices over the IoT data
// plane. Commands are fire-and-forget; the device acks on its own topic.
type GateService struct {
	iotDataClient *iotdataplane.Client
	commandTopic  string
}

func NewGateService(iotDataClient *iotdataplane.Client, cfg *config.Config) *GateService {
	return &GateService{
		iotDataClient: iotDataClient,
		commandTopic:  cfg.GateCommandTopic,
	}
}

// OpenGate asks the barrier for the given direction ("entry" or "exit") to
// open. The request id lets device acks be correlated in the logs.
func (s *GateService) OpenGate(ctx context.Context, direction string) error {
	if s.iotDataClient == nil {
		return fmt.Errorf("iot data plane client is not configured")
	}

	payload := domain.GateCommandPayload{
		Command:   "open",
		Direction: direction,
		RequestID: uuid.NewString(),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal gate command: %w", err)
	}

	log.Printf("GateService: publishing '%s' (%s, ReqID: %s) to topic %s",
		payload.Command, direction, payload.RequestID, s.commandTopic)
	_, err = s.iotDataClient.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(s.commandTopic),
		Qos:     1,
		Payload: payloadBytes,
	})
	if err != nil {
		return fmt.Errorf("publish gate command: %w", err)
	}
	return nil
}

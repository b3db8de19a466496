package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// Matches common plate layouts like "KA01AB1234" or "MH 12 DE 1433" once
// whitespace is stripped.
var plateRegex = regexp.MustCompile(`^[A-Z]{2}[0-9]{1,2}[A-Z]{0,3}[0-9]{1,4}$`)

// PlateService extracts license plate text from gate camera frames via
// Rekognition DetectText. Callers treat any error as "no plate"; an entry
// event must never be rejected because OCR was unavailable.
type PlateService struct {
	rekognitionClient *rekognition.Client
}

func NewPlateService(rekClient *rekognition.Client) *PlateService {
	return &PlateService{rekognitionClient: rekClient}
}

// ExtractPlate returns the highest-confidence detected line matching a
// plate layout, or empty when no candidate matched.
func (s *PlateService) ExtractPlate(ctx context.Context, image []byte) (string, error) {
	if s.rekognitionClient == nil {
		return "", fmt.Errorf("rekognition client is not configured")
	}

	input := &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	}
	result, err := s.rekognitionClient.DetectText(ctx, input)
	if err != nil {
		return "", fmt.Errorf("rekognition DetectText: %w", err)
	}

	var best string
	var bestConfidence float32
	for _, detection := range result.TextDetections {
		if detection.Type != types.TextTypesLine && detection.Type != types.TextTypesWord {
			continue
		}
		if detection.DetectedText == nil || detection.Confidence == nil {
			continue
		}
		candidate := strings.ToUpper(strings.Join(strings.Fields(*detection.DetectedText), ""))
		if !plateRegex.MatchString(candidate) {
			continue
		}
		if *detection.Confidence > bestConfidence {
			bestConfidence = *detection.Confidence
			best = candidate
		}
	}

	if best == "" {
		log.Printf("PlateService: no plate-shaped text among %d detections", len(result.TextDetections))
		return "", nil
	}
	log.Printf("PlateService: picked plate '%s' (confidence %.2f)", best, bestConfidence)
	return best, nil
}

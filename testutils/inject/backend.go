package inject

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"go.viam.com/peoplecount/vision/objectdetection"
)

// Backend is an injected objectdetection.Backend.
type Backend struct {
	PredictFunc func(ctx context.Context, img image.Image) ([]objectdetection.Prediction, error)
	LabelsFunc  func() []string
}

// Predict calls the injected Predict.
func (b *Backend) Predict(ctx context.Context, img image.Image) ([]objectdetection.Prediction, error) {
	if b.PredictFunc == nil {
		return nil, errors.New("Predict not injected")
	}
	return b.PredictFunc(ctx, img)
}

// Labels calls the injected Labels or returns the COCO labels.
func (b *Backend) Labels() []string {
	if b.LabelsFunc == nil {
		return objectdetection.COCOLabels
	}
	return b.LabelsFunc()
}

// PersonPrediction builds a prediction where only the person class scores.
func PersonPrediction(box image.Rectangle, score float64) objectdetection.Prediction {
	scores := make([]float64, len(objectdetection.COCOLabels))
	scores[objectdetection.PersonClassID] = score
	return objectdetection.Prediction{Box: box, Scores: scores}
}

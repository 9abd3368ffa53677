package detect

import (
	"context"
	"image"
	"math"

	"aero-vision/internal/pipeline"

	"github.com/sirupsen/logrus"
)

// TextReader recognises text in an image. ocr.Engine implements it.
type TextReader interface {
	RecognizeImage(img image.Image) (string, error)
}

// Labeled wraps a detector and names unlabelled detections after text read
// from their bounding box.
type Labeled struct {
	pipeline.Detector
	reader TextReader
	log    logrus.FieldLogger
}

// WithLabels wraps d so its detections are labelled by reader.
func WithLabels(d pipeline.Detector, reader TextReader, log logrus.FieldLogger) *Labeled {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Labeled{Detector: d, reader: reader, log: log}
}

// Detect implements pipeline.Detector. OCR failures leave the detection
// unlabelled.
func (l *Labeled) Detect(ctx context.Context, img image.Image, params pipeline.Params, report pipeline.ProgressFunc) ([]pipeline.Detection, error) {
	dets, err := l.Detector.Detect(ctx, img, params, report)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	for i := range dets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if dets[i].Label != "" {
			continue
		}
		b := dets[i].Geometry.Bounds()
		r := image.Rect(
			bounds.Min.X+int(math.Floor(b.X)), bounds.Min.Y+int(math.Floor(b.Y)),
			bounds.Min.X+int(math.Ceil(b.X+b.Width)), bounds.Min.Y+int(math.Ceil(b.Y+b.Height)),
		).Intersect(bounds)
		if r.Empty() {
			continue
		}

		text, err := l.reader.RecognizeImage(Crop(img, r))
		if err != nil {
			l.log.WithError(err).WithField("index", i).Debug("OCR failed")
			continue
		}
		dets[i].Label = text
	}
	return dets, nil
}

package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/surfaceinspect/analysis"
	"github.com/camden-git/surfaceinspect/apierr"
	"github.com/camden-git/surfaceinspect/detection"
	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/media"
	"github.com/camden-git/surfaceinspect/metrics"
	"github.com/camden-git/surfaceinspect/models"
	"github.com/camden-git/surfaceinspect/repository"
)

// DetectorSource hands out the detector, constructing it on first use.
type DetectorSource interface {
	Get(ctx context.Context) (detection.Detector, error)
}

// Upload is an image submitted for analysis.
type Upload struct {
	Filename string
	Data     []byte
}

// InspectionService runs the analysis pipeline and keeps records and their
// artifacts consistent.
type InspectionService struct {
	inspections repository.InspectionRepository
	artifacts   media.Store
	detectors   DetectorSource
	confidence  float64
	maxPixels   int64
	metrics     *metrics.Metrics
	log         *logger.Logger
	now         func() time.Time
}

func NewInspectionService(
	inspections repository.InspectionRepository,
	artifacts media.Store,
	detectors DetectorSource,
	confidence float64,
	maxPixels int64,
	m *metrics.Metrics,
	log *logger.Logger,
) *InspectionService {
	return &InspectionService{
		inspections: inspections,
		artifacts:   artifacts,
		detectors:   detectors,
		confidence:  confidence,
		maxPixels:   maxPixels,
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

// Analyze stores the upload, runs the detector on it, scores the result and
// persists an inspection for uid. On any failure after the artifact was saved
// the artifact is removed again.
func (s *InspectionService) Analyze(ctx context.Context, uid string, upload Upload) (*models.AnalysisResult, error) {
	result, err := s.analyze(ctx, uid, upload)
	if err != nil {
		s.metrics.RecordAnalysisFailure(apierr.From(err).Code)
		return nil, err
	}
	s.metrics.RecordAnalysis(string(result.Severity), result.HealthScore, result.DetectedDamages.Total())
	return result, nil
}

func (s *InspectionService) analyze(ctx context.Context, uid string, upload Upload) (*models.AnalysisResult, error) {
	info, err := media.DecodeUpload(upload.Data, s.maxPixels)
	if err != nil {
		return nil, apierr.Wrap(apierr.ErrBadRequest, "%v", err)
	}

	now := s.now()
	filename, err := media.UploadFilename(upload.Filename, info.Format, now)
	if err != nil {
		return nil, err
	}
	if _, err := s.artifacts.Save(filename, bytes.NewReader(upload.Data)); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := s.artifacts.Delete(filename); err != nil {
			s.log.Error("inspection: failed to remove artifact of failed analysis", "file", filename, "error", err)
		}
	}()

	prediction, err := s.detect(ctx, filename)
	if err != nil {
		return nil, err
	}

	counts := analysis.Tally(prediction.Labels())
	assessment := analysis.Assess(counts)

	inspection := models.Inspection{
		DetectedDamages: counts,
		Severity:        assessment.Severity,
		HealthScore:     assessment.HealthScore,
		Precautions:     assessment.Precautions,
		ImageURL:        media.ImageURL(filename),
		CreatedAt:       models.NewTimestamp(now),
	}
	if captured := media.ReadCaptureTime(upload.Data); captured != nil {
		ts := models.NewTimestamp(*captured)
		inspection.CapturedAt = &ts
	}

	if _, err := s.inspections.Create(ctx, uid, &inspection); err != nil {
		return nil, err
	}
	committed = true

	s.log.Info("inspection: analysis stored",
		"uid", uid,
		"inspection_id", inspection.ID,
		"severity", inspection.Severity,
		"health_score", inspection.HealthScore,
		"detections", counts.Total(),
	)

	result := models.NewAnalysisResult(inspection)
	return &result, nil
}

func (s *InspectionService) detect(ctx context.Context, filename string) (detection.Prediction, error) {
	detector, err := s.detectors.Get(ctx)
	if err != nil {
		return detection.Prediction{}, apierr.Wrap(apierr.ErrDetectorFailure, "detector unavailable: %v", err)
	}

	path, err := s.artifacts.GetFullPath(filename)
	if err != nil {
		return detection.Prediction{}, err
	}

	start := time.Now()
	prediction, err := detector.Predict(ctx, path, s.confidence)
	s.metrics.ObserveDetector(time.Since(start))
	if err != nil {
		return detection.Prediction{}, apierr.Wrap(apierr.ErrDetectorFailure, "%v", err)
	}
	return prediction, nil
}

// List returns the caller's inspections newest first.
func (s *InspectionService) List(ctx context.Context, uid string) ([]models.Inspection, error) {
	return s.inspections.List(ctx, uid)
}

// Delete removes an inspection and its artifact. The artifact goes first; if it
// cannot be removed the record is kept so the delete can be retried and no
// record ever points at a missing image.
func (s *InspectionService) Delete(ctx context.Context, uid, id string) error {
	err := s.delete(ctx, uid, id)
	switch {
	case err == nil:
		s.metrics.RecordDelete("ok")
	case errors.Is(err, apierr.ErrNotFound):
		s.metrics.RecordDelete("not_found")
	default:
		s.metrics.RecordDelete("error")
	}
	return err
}

func (s *InspectionService) delete(ctx context.Context, uid, id string) error {
	inspection, err := s.inspections.Get(ctx, uid, id)
	if err != nil {
		return err
	}

	if inspection.ImageURL != "" {
		filename, err := media.FilenameFromURL(inspection.ImageURL)
		if err != nil {
			// nothing on disk can match an unusable reference
			s.log.Warn("inspection: record has unusable image_url", "uid", uid, "inspection_id", id, "image_url", inspection.ImageURL)
		} else if err := s.artifacts.Delete(filename); err != nil {
			return apierr.Wrap(apierr.ErrArtifactCleanup, "inspection %s: %v", id, err)
		}
	}

	if err := s.inspections.Delete(ctx, uid, id); err != nil {
		return err
	}

	s.log.Info("inspection: deleted", "uid", uid, "inspection_id", id)
	return nil
}

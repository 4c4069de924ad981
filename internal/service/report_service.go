package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"safetywatch/internal/apperr"
	"safetywatch/internal/authz"
	"safetywatch/internal/ids"
	"safetywatch/internal/models"
)

const (
	exportReadingsLimit = 1000
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	readingsSheet       = "Readings"
)

var readingHeaders = []string{
	"Recorded At (UTC)", "Heart Rate (bpm)", "Body Temperature (C)", "Fall Detected",
	"Gas Level (ppm)", "Gas Status", "Motion Status", "Health Status",
}

type ReportUploader interface {
	PutReport(ctx context.Context, key string, body []byte, contentType string) (string, time.Time, error)
}

type ReportService struct {
	workers  *WorkerService
	readings ReadingReader
	uploader ReportUploader
	log      zerolog.Logger
	now      func() time.Time
}

func NewReportService(workers *WorkerService, readings ReadingReader, uploader ReportUploader, log zerolog.Logger) *ReportService {
	return &ReportService{
		workers:  workers,
		readings: readings,
		uploader: uploader,
		log:      log,
		now:      time.Now,
	}
}

type ExportResult struct {
	URL       string
	Key       string
	Rows      int
	ExpiresAt time.Time
}

// ExportReadings renders the worker's newest readings as a workbook and
// returns a time-limited download link.
func (s *ReportService) ExportReadings(ctx context.Context, caller authz.Caller, workerID string) (ExportResult, error) {
	worker, err := s.workers.Authorize(ctx, caller, authz.ActionExportReadings, workerID)
	if err != nil {
		return ExportResult{}, err
	}

	readings, err := s.readings.ListByWorker(ctx, worker.ID, exportReadingsLimit)
	if err != nil {
		return ExportResult{}, apperr.Internal("Failed to load sensor data", err)
	}

	body, err := renderReadings(worker, readings)
	if err != nil {
		return ExportResult{}, apperr.Internal("Failed to render report", err)
	}

	key := fmt.Sprintf("readings/%s/%s-%s.xlsx", worker.WorkerCode, s.now().UTC().Format("20060102T150405Z"), ids.New())
	url, expiresAt, err := s.uploader.PutReport(ctx, key, body, xlsxContentType)
	if err != nil {
		return ExportResult{}, apperr.Internal("Failed to store report", err)
	}

	s.log.Info().
		Str("worker_id", worker.ID).
		Str("key", key).
		Int("rows", len(readings)).
		Str("caller_id", caller.PrincipalID).
		Msg("readings exported")
	return ExportResult{URL: url, Key: key, Rows: len(readings), ExpiresAt: expiresAt}, nil
}

func renderReadings(worker models.Worker, readings []models.SensorReading) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", readingsSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1F4E78"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s (%s)", worker.Name, worker.WorkerCode)
	if err := f.SetCellValue(readingsSheet, "A1", title); err != nil {
		return nil, err
	}

	header := make([]any, len(readingHeaders))
	for i, h := range readingHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(readingsSheet, "A2", &header); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(readingsSheet, "A2", "H2", headerStyle); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(readingsSheet, "A", "H", 20); err != nil {
		return nil, err
	}

	for i, r := range readings {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return nil, err
		}
		row := []any{
			r.RecordedAt.UTC().Format(time.RFC3339),
			optional(r.HeartRate),
			optional(r.BodyTemperature),
			r.FallDetected,
			optional(r.GasLevel),
			string(r.GasStatus),
			string(r.MotionStatus),
			string(r.HealthStatus),
		}
		if err := f.SetSheetRow(readingsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optional[T any](v *T) any {
	if v == nil {
		return ""
	}
	return *v
}

package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/makerdesk/timeclock-api/internal/models"
	appErrors "github.com/makerdesk/timeclock-api/pkg/errors"
	"github.com/makerdesk/timeclock-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	MaxRows int
}

// ExportRequest names the report window and output format.
type ExportRequest struct {
	StudentID string
	TermID    string
	From      time.Time
	To        time.Time
	Format    models.ReportFormat
}

// ExportResult carries the rendered bytes plus download metadata. StoredPath
// is set when an audit copy was written to disk.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	StoredPath  string
}

// ExportService renders punctuality reports as CSV or PDF downloads.
type ExportService struct {
	analytics *AnalyticsService
	storage   exportStorage
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService. Storage is optional; when
// present every rendered report also gets an on-disk audit copy.
func NewExportService(analytics *AnalyticsService, storage exportStorage, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		analytics: analytics,
		storage:   storage,
		csv:       csv,
		pdf:       pdf,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate builds the punctuality dataset for the window and renders it.
func (s *ExportService) Generate(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if !req.Format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", req.Format))
	}

	daily, err := s.analytics.DailyBreakdown(ctx, BreakdownRequest{
		StudentID: req.StudentID,
		TermID:    req.TermID,
		From:      req.From,
		To:        req.To,
	})
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxRows > 0 && len(daily) > s.cfg.MaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("report window spans %d days, limit is %d", len(daily), s.cfg.MaxRows))
	}

	dataset := buildPunctualityDataset(daily)
	title := fmt.Sprintf("Punctuality report %s", req.StudentID)

	var payload []byte
	switch req.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s export: %w", req.Format, err)
	}

	result := &ExportResult{
		Filename:    s.buildFilename(req),
		ContentType: req.Format.ContentType(),
		Payload:     payload,
	}
	if s.storage != nil {
		path, err := s.storage.Save(result.Filename, payload)
		if err != nil {
			// Download still succeeds, only the audit copy is lost.
			s.logger.Warn("store export copy", zap.String("filename", result.Filename), zap.Error(err))
		} else {
			result.StoredPath = path
		}
	}
	return result, nil
}

func (s *ExportService) buildFilename(req ExportRequest) string {
	return fmt.Sprintf("punctuality_%s_%s_%s.%s",
		req.StudentID, req.TermID, time.Now().UTC().Format("20060102T150405Z"), req.Format)
}

func buildPunctualityDataset(daily []models.DailyBucket) export.Dataset {
	headers := []string{"Day", "Expected Minutes", "Actual Minutes", "Classification"}
	rows := make([]map[string]string, 0, len(daily))
	for _, bucket := range daily {
		classification := string(bucket.Classification)
		if classification == "" {
			classification = "-"
		}
		rows = append(rows, map[string]string{
			"Day":              bucket.DayKey,
			"Expected Minutes": strconv.Itoa(bucket.ExpectedMinutes),
			"Actual Minutes":   strconv.Itoa(bucket.ActualMinutes),
			"Classification":   classification,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

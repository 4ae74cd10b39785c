package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/pkg/export"
)

type rosterSource interface {
	Roster(ctx context.Context, courseID string) (*models.Course, []models.RosterEntry, error)
}

// RosterFile is a rendered participant list.
type RosterFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders course rosters as CSV for staff.
type ExportService struct {
	source   rosterSource
	exporter *export.CSVExporter
}

// NewExportService constructs an ExportService.
func NewExportService(source rosterSource, exporter *export.CSVExporter) *ExportService {
	if exporter == nil {
		exporter = export.NewCSVExporter()
	}
	return &ExportService{source: source, exporter: exporter}
}

// RosterCSV renders the active participants of a course.
func (s *ExportService) RosterCSV(ctx context.Context, courseID string) (*RosterFile, error) {
	course, roster, err := s.source.Roster(ctx, courseID)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Headers: []string{"no", "nim", "full_name", "semester", "registered_at"},
		Rows:    make([][]string, 0, len(roster)),
	}
	for i, entry := range roster {
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(i + 1),
			entry.NIM,
			entry.FullName,
			strconv.Itoa(entry.Semester),
			entry.RegisteredAt.UTC().Format(time.RFC3339),
		})
	}

	body, err := s.exporter.Render(data)
	if err != nil {
		return nil, internalError(err, "failed to render roster")
	}
	return &RosterFile{
		Filename:    fmt.Sprintf("roster-%s.csv", course.Code),
		ContentType: "text/csv; charset=utf-8",
		Body:        body,
	}, nil
}

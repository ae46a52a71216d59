package timesheet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ExportMonthly writes the monthly report for every subject as an
// indented JSON file under dir and returns the file path.
func (s *Service) ExportMonthly(ctx context.Context, dir string, year, month int) (string, error) {
	report, err := s.MonthlyReport(ctx, year, month)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("monthly_report_%d_%02d.json", year, month))
	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

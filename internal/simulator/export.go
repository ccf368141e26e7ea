package simulator

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/renameio/v2"
)

// WriteJSON atomically persists the result as JSON through renameio's
// temp-file-plus-fsync-plus-rename sequence.
func (r Result) WriteJSON(path string) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending simulation file: %w", err)
	}
	defer pending.Cleanup()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode simulation result: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace simulation file: %w", err)
	}
	return nil
}

// WriteCSV atomically persists one row per scenario (base plus every
// variation) with the flattened metric vector.
func (r Result) WriteCSV(path string) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending simulation file: %w", err)
	}
	defer pending.Cleanup()

	w := csv.NewWriter(pending)
	header := []string{
		"scenario", "service_readiness", "reliability", "cost_efficiency",
		"branding_exposure", "energy_efficiency", "overall_score",
		"constraint_violations", "recommendation_count",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	rows := append([]ScenarioResult{r.Base}, r.Variations...)
	for _, sr := range rows {
		if err := w.Write(metricsRow(sr)); err != nil {
			return fmt.Errorf("write csv row for %q: %w", sr.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace simulation file: %w", err)
	}
	return nil
}

func metricsRow(sr ScenarioResult) []string {
	m := sr.Metrics
	return []string{
		sr.Name,
		strconv.FormatFloat(m.ServiceReadiness, 'f', 2, 64),
		strconv.FormatFloat(m.Reliability, 'f', 2, 64),
		strconv.FormatFloat(m.CostEfficiency, 'f', 2, 64),
		strconv.FormatFloat(m.BrandingExposure, 'f', 2, 64),
		strconv.FormatFloat(m.EnergyEfficiency, 'f', 2, 64),
		strconv.FormatFloat(m.OverallScore, 'f', 2, 64),
		strconv.Itoa(m.ConstraintViolations),
		strconv.Itoa(m.RecommendationCount),
	}
}

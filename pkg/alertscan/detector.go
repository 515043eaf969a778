package alertscan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openelectorate/newspulse/internal/store"
	"github.com/openelectorate/newspulse/pkg/pulse"
)

// Detection thresholds.
const (
	spikeDelta         = 0.35
	spikeMinSignals    = 3
	surgeMinCount      = 3
	surgeMinConfidence = 0.8
	criticalMaxScore   = -0.7
	criticalMinConf    = 0.9
)

// Detector runs periodic anomaly scans over monitored candidates and
// writes deduplicated alerts.
type Detector struct {
	store         store.Store
	pulse         *pulse.Engine
	log           *slog.Logger
	fallbackGeoID int64
}

// NewDetector creates an alert detector. fallbackGeoID attributes alerts
// whose candidate has no constituency on record.
func NewDetector(s store.Store, p *pulse.Engine, fallbackGeoID int64) *Detector {
	if fallbackGeoID <= 0 {
		fallbackGeoID = 1
	}
	return &Detector{
		store:         s,
		pulse:         p,
		log:           slog.With("component", "alertscan"),
		fallbackGeoID: fallbackGeoID,
	}
}

// Scan runs every detector for every candidate with an active, user-linked
// monitoring profile. One detector or candidate failing never stops the
// rest of the scan. Returns the number of alerts created.
func (d *Detector) Scan(ctx context.Context) (int, error) {
	candidates, err := d.store.ListSubscribedCandidatesWithUser(ctx)
	if err != nil {
		return 0, fmt.Errorf("list scan candidates: %w", err)
	}

	detectors := []struct {
		name string
		run  func(context.Context, *store.Candidate) (int, error)
	}{
		{"sentiment_spike", d.detectSpike},
		{"negative_surge", d.detectSurge},
		{"high_confidence_hit", d.detectCriticalHits},
	}

	created := 0
	for i := range candidates {
		cand := &candidates[i]
		for _, det := range detectors {
			n, err := det.run(ctx, cand)
			if err != nil {
				d.log.Warn("detector failed", "detector", det.name, "candidate", cand.ID, "error", err)
				continue
			}
			created += n
		}
	}
	return created, nil
}

// detectSpike compares the 1-day pulse against the 7-day baseline. Fewer
// than spikeMinSignals recent signals is an insufficient sample and skips.
func (d *Detector) detectSpike(ctx context.Context, cand *store.Candidate) (int, error) {
	day, err := d.pulse.CalculatePulse(ctx, cand.ID, 1)
	if err != nil {
		return 0, err
	}
	if day.ArticlesAnalyzed < spikeMinSignals {
		return 0, nil
	}

	baseline, err := d.pulse.CalculatePulse(ctx, cand.ID, 7)
	if err != nil {
		return 0, err
	}

	delta := day.PulseScore - baseline.PulseScore
	if delta < spikeDelta && delta > -spikeDelta {
		return 0, nil
	}

	direction := "positive"
	if delta < 0 {
		direction = "negative"
	}
	msg := fmt.Sprintf("Sentiment spike for %s: %s shift of %.2f (1-day pulse %.2f vs 7-day baseline %.2f)",
		cand.FullName, direction, abs(delta), day.PulseScore, baseline.PulseScore)

	return 1, d.createAlert(ctx, cand, store.AlertSentimentSpike, msg, 0)
}

// detectSurge counts recent high-confidence negative signals on articles
// mentioning the candidate directly.
func (d *Detector) detectSurge(ctx context.Context, cand *store.Candidate) (int, error) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	n, err := d.store.CountNegativeSignals(ctx, cand.ID, since, surgeMinConfidence)
	if err != nil {
		return 0, err
	}
	if n < surgeMinCount {
		return 0, nil
	}

	msg := fmt.Sprintf("Controversy warning for %s: %d high-confidence negative stories in the last 24 hours",
		cand.FullName, n)
	return 1, d.createAlert(ctx, cand, store.AlertControversy, msg, 0)
}

// detectCriticalHits alerts on individual strongly negative stories. The
// only dedup is whether an existing alert for the user already quotes the
// article title; it is deliberately coarse.
func (d *Detector) detectCriticalHits(ctx context.Context, cand *store.Candidate) (int, error) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	hits, err := d.store.ListCriticalSignals(ctx, cand.ID, since, criticalMaxScore, criticalMinConf)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range hits {
		hit := &hits[i]
		seen, err := d.store.AlertMessageContains(ctx, cand.UserID.Int64, hit.Title)
		if err != nil {
			return created, err
		}
		if seen {
			continue
		}

		msg := fmt.Sprintf("Highly critical coverage of %s: %q (sentiment %.2f, confidence %.2f)",
			cand.FullName, hit.Title, hit.SentimentScore, hit.Confidence)
		if err := d.createAlert(ctx, cand, store.AlertNewsMention, msg, hit.GeoUnitID); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// createAlert writes an alert with geo attribution: explicit unit from the
// triggering signal, else the candidate's constituency, else the fallback.
func (d *Detector) createAlert(ctx context.Context, cand *store.Candidate, typ store.AlertType, msg string, geoUnitID int64) error {
	if geoUnitID <= 0 {
		geoUnitID = cand.GeoUnitID
	}
	if geoUnitID <= 0 {
		geoUnitID = d.fallbackGeoID
	}
	return d.store.InsertAlert(ctx, &store.Alert{
		UserID:    cand.UserID.Int64,
		GeoUnitID: geoUnitID,
		Type:      typ,
		Message:   msg,
	})
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

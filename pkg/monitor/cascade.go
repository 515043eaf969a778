package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openelectorate/newspulse/internal/store"
)

// Domain priorities assigned by the activation paths.
const (
	PrioritySubscribed = 10
	PriorityOpponent   = 9
	PriorityGeo        = 9
	PriorityParty      = 8
	PriorityGeoAccess  = 8
	PriorityGeoTopN    = 7
)

// ActivationResult reports everything a cascade touched, so callers can
// inspect and replay the fan-out.
type ActivationResult struct {
	ActivatedCount int                     `json:"activated_count"`
	Entities       []store.MonitoredEntity `json:"entities"`
}

// Cascade orchestrates registry activation fan-out: subscribing one
// candidate also begins tracking their opponents, party and constituency.
type Cascade struct {
	store store.Store
	log   *slog.Logger

	// geoTopN bounds how many candidates a geo-access grant activates.
	geoTopN int
}

// NewCascade creates a cascade manager.
func NewCascade(s store.Store, geoTopN int) *Cascade {
	if geoTopN <= 0 {
		geoTopN = 5
	}
	return &Cascade{
		store:   s,
		log:     slog.With("component", "cascade"),
		geoTopN: geoTopN,
	}
}

// Activate subscribes a candidate and activates their derived context.
// If the candidate has no profile, one is inferred from their latest
// election result; with neither, the call fails with store.ErrNotFound.
func (c *Cascade) Activate(ctx context.Context, candidateID, userID int64) (*ActivationResult, error) {
	cand, err := c.resolveCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if userID > 0 && !cand.UserID.Valid {
		if err := c.store.LinkCandidateUser(ctx, cand.ID, userID); err != nil {
			return nil, err
		}
		cand.UserID = sql.NullInt64{Int64: userID, Valid: true}
	}
	if err := c.store.SetCandidateSubscription(ctx, cand.ID, true, now); err != nil {
		return nil, fmt.Errorf("subscribe candidate %d: %w", cand.ID, err)
	}

	result := &ActivationResult{}

	// The subscribing candidate wins top priority. Every row in this
	// cascade is stamped with the subscriber's id so deactivation can
	// find the whole fan-out later.
	if err := c.activate(ctx, result, store.MonitoredEntity{
		EntityType:  store.EntityCandidate,
		EntityID:    cand.ID,
		Priority:    PrioritySubscribed,
		Reason:      store.ReasonSubscribed,
		TriggeredBy: cand.ID,
	}); err != nil {
		return nil, err
	}
	if err := c.seedCandidateKeywords(ctx, cand, PrioritySubscribed); err != nil {
		return nil, err
	}

	// Opponents: everyone else contesting the same constituency.
	if cand.GeoUnitID > 0 {
		opponents, err := c.store.ListCandidatesByGeo(ctx, cand.GeoUnitID)
		if err != nil {
			return nil, err
		}
		for i := range opponents {
			opp := &opponents[i]
			if opp.ID == cand.ID {
				continue
			}
			if err := c.activate(ctx, result, store.MonitoredEntity{
				EntityType:  store.EntityCandidate,
				EntityID:    opp.ID,
				Priority:    PriorityOpponent,
				Reason:      store.ReasonOpponent,
				TriggeredBy: cand.ID,
			}); err != nil {
				return nil, err
			}
			if err := c.seedCandidateKeywords(ctx, opp, PriorityOpponent); err != nil {
				return nil, err
			}
		}
	}

	if cand.PartyID > 0 {
		if err := c.activate(ctx, result, store.MonitoredEntity{
			EntityType:  store.EntityParty,
			EntityID:    cand.PartyID,
			Priority:    PriorityParty,
			Reason:      store.ReasonPartyContext,
			TriggeredBy: cand.ID,
		}); err != nil {
			return nil, err
		}
		if err := c.seedPartyKeywords(ctx, cand.PartyID, PriorityParty); err != nil {
			return nil, err
		}
	}

	if cand.GeoUnitID > 0 {
		if err := c.activate(ctx, result, store.MonitoredEntity{
			EntityType:  store.EntityGeoUnit,
			EntityID:    cand.GeoUnitID,
			Priority:    PriorityGeo,
			Reason:      store.ReasonGeoContext,
			TriggeredBy: cand.ID,
		}); err != nil {
			return nil, err
		}
		if err := c.seedGeoKeywords(ctx, cand.GeoUnitID, PriorityGeo); err != nil {
			return nil, err
		}
	}

	c.log.Info("activation cascade complete",
		"candidate", cand.ID, "activated", result.ActivatedCount)
	return result, nil
}

// ActivateGeoScope activates a geo unit plus the top candidates by vote
// count in its latest election. Lower priorities bound ingestion cost.
func (c *Cascade) ActivateGeoScope(ctx context.Context, geoUnitID int64) (*ActivationResult, error) {
	if _, err := c.store.GetGeoUnit(ctx, geoUnitID); err != nil {
		return nil, fmt.Errorf("resolve geo unit %d: %w", geoUnitID, err)
	}

	result := &ActivationResult{}
	if err := c.activate(ctx, result, store.MonitoredEntity{
		EntityType: store.EntityGeoUnit,
		EntityID:   geoUnitID,
		Priority:   PriorityGeoAccess,
		Reason:     store.ReasonGeoAccess,
	}); err != nil {
		return nil, err
	}
	if err := c.seedGeoKeywords(ctx, geoUnitID, PriorityGeoAccess); err != nil {
		return nil, err
	}

	top, err := c.store.TopCandidatesByVotes(ctx, geoUnitID, c.geoTopN)
	if err != nil {
		return nil, err
	}
	for i := range top {
		if err := c.activate(ctx, result, store.MonitoredEntity{
			EntityType: store.EntityCandidate,
			EntityID:   top[i].ID,
			Priority:   PriorityGeoTopN,
			Reason:     store.ReasonGeoAccessContext,
		}); err != nil {
			return nil, err
		}
		if err := c.seedCandidateKeywords(ctx, &top[i], PriorityGeoTopN); err != nil {
			return nil, err
		}
	}

	c.log.Info("geo scope activated", "geo_unit", geoUnitID, "activated", result.ActivatedCount)
	return result, nil
}

// Deactivate unsubscribes a candidate and deactivates every registry row
// that candidate's subscription triggered.
func (c *Cascade) Deactivate(ctx context.Context, candidateID int64) (int64, error) {
	if _, err := c.store.GetCandidate(ctx, candidateID); err != nil {
		return 0, fmt.Errorf("resolve candidate %d: %w", candidateID, err)
	}
	if err := c.store.SetCandidateSubscription(ctx, candidateID, false, time.Time{}); err != nil {
		return 0, err
	}
	n, err := c.store.DeactivateTriggeredBy(ctx, candidateID)
	if err != nil {
		return 0, err
	}
	c.log.Info("deactivated", "candidate", candidateID, "entities", n)
	return n, nil
}

func (c *Cascade) activate(ctx context.Context, result *ActivationResult, me store.MonitoredEntity) error {
	me.IsActive = true
	me.UpdatedAt = time.Now().UTC()
	if err := c.store.UpsertMonitoredEntity(ctx, &me); err != nil {
		return err
	}
	result.ActivatedCount++
	result.Entities = append(result.Entities, me)
	return nil
}

// resolveCandidate loads a profile, creating one from the latest election
// result when the directory has no row yet.
func (c *Cascade) resolveCandidate(ctx context.Context, candidateID int64) (*store.Candidate, error) {
	cand, err := c.store.GetCandidate(ctx, candidateID)
	if err == nil {
		return cand, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	res, rerr := c.store.LatestResultForCandidate(ctx, candidateID)
	if rerr != nil {
		if errors.Is(rerr, store.ErrNotFound) {
			return nil, fmt.Errorf("candidate %d has no profile and no election history: %w", candidateID, store.ErrNotFound)
		}
		return nil, rerr
	}

	cand = &store.Candidate{
		ID:        candidateID,
		FullName:  res.CandidateName,
		PartyID:   res.PartyID,
		GeoUnitID: res.GeoUnitID,
	}
	if err := c.store.CreateCandidate(ctx, cand); err != nil {
		return nil, err
	}
	c.log.Info("auto-created candidate profile from election history", "candidate", candidateID)
	return cand, nil
}

func (c *Cascade) seedCandidateKeywords(ctx context.Context, cand *store.Candidate, priority int) error {
	words := []string{cand.FullName}
	return c.store.SeedKeywords(ctx, store.EntityCandidate, cand.ID, words, priority)
}

func (c *Cascade) seedPartyKeywords(ctx context.Context, partyID int64, priority int) error {
	p, err := c.store.GetParty(ctx, partyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return c.store.SeedKeywords(ctx, store.EntityParty, partyID, []string{p.Name, p.Abbreviation}, priority)
}

func (c *Cascade) seedGeoKeywords(ctx context.Context, geoUnitID int64, priority int) error {
	g, err := c.store.GetGeoUnit(ctx, geoUnitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return c.store.SeedKeywords(ctx, store.EntityGeoUnit, geoUnitID, []string{g.Name, g.Code}, priority)
}

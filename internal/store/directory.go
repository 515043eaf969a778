package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Directory lookups stand in for the surrounding CRUD layer: read-mostly
// reference data about candidates, parties and geo units.

func (s *SQLiteStore) GetCandidate(ctx context.Context, id int64) (*Candidate, error) {
	var c Candidate
	err := s.db.GetContext(ctx, &c, "SELECT * FROM candidates WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate %d: %w", id, err)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateCandidate(ctx context.Context, c *Candidate) error {
	var res sql.Result
	var err error
	if c.ID > 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO candidates (id, full_name, party_id, geo_unit_id, user_id, subscribed, monitoring_started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.FullName, c.PartyID, c.GeoUnitID, c.UserID, c.Subscribed, c.MonitoringStartedAt)
	} else {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO candidates (full_name, party_id, geo_unit_id, user_id, subscribed, monitoring_started_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.FullName, c.PartyID, c.GeoUnitID, c.UserID, c.Subscribed, c.MonitoringStartedAt)
	}
	if err != nil {
		return fmt.Errorf("create candidate %q: %w", c.FullName, err)
	}
	if c.ID == 0 {
		c.ID, _ = res.LastInsertId()
	}
	return nil
}

func (s *SQLiteStore) SetCandidateSubscription(ctx context.Context, id int64, subscribed bool, startedAt time.Time) error {
	var started sql.NullTime
	if subscribed {
		started = sql.NullTime{Time: startedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE candidates SET subscribed = ?, monitoring_started_at = ? WHERE id = ?
	`, subscribed, started, id)
	if err != nil {
		return fmt.Errorf("set candidate %d subscription: %w", id, err)
	}
	return nil
}

// LinkCandidateUser attaches a user account to a candidate profile. An
// existing link is never overwritten.
func (s *SQLiteStore) LinkCandidateUser(ctx context.Context, id, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE candidates SET user_id = ? WHERE id = ? AND user_id IS NULL", userID, id)
	if err != nil {
		return fmt.Errorf("link candidate %d to user %d: %w", id, userID, err)
	}
	return nil
}

func (s *SQLiteStore) ListCandidatesByGeo(ctx context.Context, geoUnitID int64) ([]Candidate, error) {
	var out []Candidate
	err := s.db.SelectContext(ctx, &out,
		"SELECT * FROM candidates WHERE geo_unit_id = ? ORDER BY id", geoUnitID)
	if err != nil {
		return nil, fmt.Errorf("list candidates for geo %d: %w", geoUnitID, err)
	}
	return out, nil
}

func (s *SQLiteStore) ListCandidates(ctx context.Context) ([]Candidate, error) {
	var out []Candidate
	if err := s.db.SelectContext(ctx, &out, "SELECT * FROM candidates ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return out, nil
}

// ListSubscribedCandidatesWithUser returns candidates eligible for alert
// scanning: subscribed and linked to a user account.
func (s *SQLiteStore) ListSubscribedCandidatesWithUser(ctx context.Context) ([]Candidate, error) {
	var out []Candidate
	err := s.db.SelectContext(ctx, &out,
		"SELECT * FROM candidates WHERE subscribed = 1 AND user_id IS NOT NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list subscribed candidates: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetParty(ctx context.Context, id int64) (*Party, error) {
	var p Party
	err := s.db.GetContext(ctx, &p, "SELECT * FROM parties WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get party %d: %w", id, err)
	}
	return &p, nil
}

func (s *SQLiteStore) CreateParty(ctx context.Context, p *Party) error {
	if p.ID > 0 {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO parties (id, name, abbreviation) VALUES (?, ?, ?)", p.ID, p.Name, p.Abbreviation)
		if err != nil {
			return fmt.Errorf("create party %q: %w", p.Name, err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO parties (name, abbreviation) VALUES (?, ?)", p.Name, p.Abbreviation)
	if err != nil {
		return fmt.Errorf("create party %q: %w", p.Name, err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetGeoUnit(ctx context.Context, id int64) (*GeoUnit, error) {
	var g GeoUnit
	err := s.db.GetContext(ctx, &g, "SELECT * FROM geo_units WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get geo unit %d: %w", id, err)
	}
	return &g, nil
}

func (s *SQLiteStore) CreateGeoUnit(ctx context.Context, g *GeoUnit) error {
	if g.ID > 0 {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO geo_units (id, name, code) VALUES (?, ?, ?)", g.ID, g.Name, g.Code)
		if err != nil {
			return fmt.Errorf("create geo unit %q: %w", g.Name, err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO geo_units (name, code) VALUES (?, ?)", g.Name, g.Code)
	if err != nil {
		return fmt.Errorf("create geo unit %q: %w", g.Name, err)
	}
	g.ID, _ = res.LastInsertId()
	return nil
}

// FindGeoUnit resolves a human-entered geo identifier: exact code match
// first, then case-insensitive name match, then name prefix.
func (s *SQLiteStore) FindGeoUnit(ctx context.Context, nameOrCode string) (*GeoUnit, error) {
	var g GeoUnit
	err := s.db.GetContext(ctx, &g, `
		SELECT * FROM geo_units
		WHERE code = ?1 OR name = ?1 COLLATE NOCASE OR name LIKE ?1 || '%' COLLATE NOCASE
		ORDER BY CASE WHEN code = ?1 THEN 0 WHEN name = ?1 COLLATE NOCASE THEN 1 ELSE 2 END
		LIMIT 1
	`, nameOrCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find geo unit %q: %w", nameOrCode, err)
	}
	return &g, nil
}

func (s *SQLiteStore) LatestResultForCandidate(ctx context.Context, candidateID int64) (*ElectionResult, error) {
	var r ElectionResult
	err := s.db.GetContext(ctx, &r, `
		SELECT * FROM election_results WHERE candidate_id = ?
		ORDER BY election_date DESC LIMIT 1
	`, candidateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest result for candidate %d: %w", candidateID, err)
	}
	return &r, nil
}

// TopCandidatesByVotes returns up to n candidates ranked by vote count in
// the latest election held in the geo unit.
func (s *SQLiteStore) TopCandidatesByVotes(ctx context.Context, geoUnitID int64, n int) ([]Candidate, error) {
	if n <= 0 {
		n = 5
	}
	var out []Candidate
	err := s.db.SelectContext(ctx, &out, `
		SELECT c.* FROM candidates c
		JOIN election_results r ON r.candidate_id = c.id
		WHERE r.geo_unit_id = ?1
		  AND r.election_date = (SELECT MAX(election_date) FROM election_results WHERE geo_unit_id = ?1)
		ORDER BY r.votes DESC LIMIT ?2
	`, geoUnitID, n)
	if err != nil {
		return nil, fmt.Errorf("top candidates for geo %d: %w", geoUnitID, err)
	}
	return out, nil
}

func (s *SQLiteStore) CreateElectionResult(ctx context.Context, r *ElectionResult) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO election_results (candidate_id, candidate_name, geo_unit_id, party_id, votes, election_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.CandidateID, r.CandidateName, r.GeoUnitID, r.PartyID, r.Votes, r.ElectionDate)
	if err != nil {
		return fmt.Errorf("create election result: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

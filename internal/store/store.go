package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// EntityType identifies what kind of entity is being tracked.
type EntityType string

const (
	EntityCandidate EntityType = "CANDIDATE"
	EntityParty     EntityType = "PARTY"
	EntityGeoUnit   EntityType = "GEO_UNIT"
)

// ActivationReason records which cascade path activated an entity.
type ActivationReason string

const (
	ReasonSubscribed       ActivationReason = "SUBSCRIBED"
	ReasonOpponent         ActivationReason = "OPPONENT"
	ReasonPartyContext     ActivationReason = "PARTY_CONTEXT"
	ReasonGeoContext       ActivationReason = "GEO_CONTEXT"
	ReasonGeoAccess        ActivationReason = "GEO_ACCESS"
	ReasonSelectedOpponent ActivationReason = "SELECTED_OPPONENT"
	ReasonGeoAccessContext ActivationReason = "GEO_ACCESS_CONTEXT"
)

// MonitoredEntity is one row of the active-tracking registry.
type MonitoredEntity struct {
	ID          int64            `db:"id" json:"id"`
	EntityType  EntityType       `db:"entity_type" json:"entity_type"`
	EntityID    int64            `db:"entity_id" json:"entity_id"`
	IsActive    bool             `db:"is_active" json:"is_active"`
	Priority    int              `db:"priority" json:"priority"`
	Reason      ActivationReason `db:"reason" json:"reason"`
	TriggeredBy int64            `db:"triggered_by" json:"triggered_by"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// Keyword is a search term seeded for a tracked entity.
type Keyword struct {
	ID         int64      `db:"id" json:"id"`
	Keyword    string     `db:"keyword" json:"keyword"`
	EntityType EntityType `db:"entity_type" json:"entity_type"`
	EntityID   int64      `db:"entity_id" json:"entity_id"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	Priority   int        `db:"priority" json:"priority"`
}

// ArticleStatus is the moderation state of an article.
type ArticleStatus string

const (
	StatusApproved ArticleStatus = "APPROVED"
	StatusPending  ArticleStatus = "PENDING"
	StatusRejected ArticleStatus = "REJECTED"
)

// IngestType says how an article entered the system.
type IngestType string

const (
	IngestAPI    IngestType = "API"
	IngestManual IngestType = "MANUAL"
)

// Article is a stored news item, unique by source URL.
type Article struct {
	ID          int64         `db:"id" json:"id"`
	Title       string        `db:"title" json:"title"`
	Summary     string        `db:"summary" json:"summary"`
	SourceName  string        `db:"source_name" json:"source_name"`
	SourceURL   string        `db:"source_url" json:"source_url"`
	PublishedAt time.Time     `db:"published_at" json:"published_at"`
	Status      ArticleStatus `db:"status" json:"status"`
	IngestType  IngestType    `db:"ingest_type" json:"ingest_type"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// EntityMention links an article to a tracked entity.
type EntityMention struct {
	ArticleID  int64      `db:"article_id" json:"article_id"`
	EntityType EntityType `db:"entity_type" json:"entity_type"`
	EntityID   int64      `db:"entity_id" json:"entity_id"`
}

// Sentiment is a discrete sentiment label.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentNegative Sentiment = "NEGATIVE"
)

// SentimentSignal is one scored reading of an article in a geo context.
type SentimentSignal struct {
	ID              int64           `db:"id" json:"id"`
	GeoUnitID       int64           `db:"geo_unit_id" json:"geo_unit_id"`
	SourceRefID     int64           `db:"source_ref_id" json:"source_ref_id"`
	Sentiment       Sentiment       `db:"sentiment" json:"sentiment"`
	SentimentScore  float64         `db:"sentiment_score" json:"sentiment_score"`
	Confidence      float64         `db:"confidence" json:"confidence"`
	RelevanceWeight sql.NullFloat64 `db:"relevance_weight" json:"relevance_weight"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// SignalWithTitle is a signal joined with its source article title.
type SignalWithTitle struct {
	SentimentSignal
	Title string `db:"title" json:"title"`
}

// AlertType classifies a detector finding.
type AlertType string

const (
	AlertSentimentSpike AlertType = "SENTIMENT_SPIKE"
	AlertControversy    AlertType = "CONTROVERSY"
	AlertNewsMention    AlertType = "NEWS_MENTION"
)

// Alert is a stored detector finding for one user.
type Alert struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	GeoUnitID int64     `db:"geo_unit_id" json:"geo_unit_id"`
	Type      AlertType `db:"type" json:"type"`
	Message   string    `db:"message" json:"message"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Candidate is a directory row for a tracked politician.
type Candidate struct {
	ID                  int64         `db:"id" json:"id"`
	FullName            string        `db:"full_name" json:"full_name"`
	PartyID             int64         `db:"party_id" json:"party_id"`
	GeoUnitID           int64         `db:"geo_unit_id" json:"geo_unit_id"`
	UserID              sql.NullInt64 `db:"user_id" json:"user_id"`
	Subscribed          bool          `db:"subscribed" json:"subscribed"`
	MonitoringStartedAt sql.NullTime  `db:"monitoring_started_at" json:"monitoring_started_at"`
}

// Party is a directory row for a political party.
type Party struct {
	ID           int64  `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	Abbreviation string `db:"abbreviation" json:"abbreviation"`
}

// GeoUnit is a directory row for a constituency or other geographic unit.
type GeoUnit struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Code string `db:"code" json:"code"`
}

// ElectionResult is one candidate's vote count in one election.
type ElectionResult struct {
	ID            int64     `db:"id" json:"id"`
	CandidateID   int64     `db:"candidate_id" json:"candidate_id"`
	CandidateName string    `db:"candidate_name" json:"candidate_name"`
	GeoUnitID     int64     `db:"geo_unit_id" json:"geo_unit_id"`
	PartyID       int64     `db:"party_id" json:"party_id"`
	Votes         int64     `db:"votes" json:"votes"`
	ElectionDate  time.Time `db:"election_date" json:"election_date"`
}

// SignalWindow filters signal selection.
type SignalWindow struct {
	From time.Time
	To   time.Time
}

// Store is the persistence interface.
type Store interface {
	// Registry.
	UpsertMonitoredEntity(ctx context.Context, me *MonitoredEntity) error
	GetMonitoredEntity(ctx context.Context, et EntityType, id int64) (*MonitoredEntity, error)
	ListActiveEntities(ctx context.Context) ([]MonitoredEntity, error)
	DeactivateEntity(ctx context.Context, et EntityType, id int64) error
	DeactivateTriggeredBy(ctx context.Context, candidateID int64) (int64, error)

	// Keywords.
	SeedKeywords(ctx context.Context, et EntityType, id int64, words []string, priority int) error
	ListActiveKeywords(ctx context.Context, et EntityType, id int64) ([]Keyword, error)

	// Articles and mentions.
	InsertArticle(ctx context.Context, a *Article) (created bool, err error)
	GetArticleByURL(ctx context.Context, url string) (*Article, error)
	GetArticle(ctx context.Context, id int64) (*Article, error)
	UpsertMention(ctx context.Context, m *EntityMention) error
	ListMentionsByArticle(ctx context.Context, articleID int64) ([]EntityMention, error)
	CountArticles(ctx context.Context) (int, error)

	// Signals.
	InsertSignal(ctx context.Context, sig *SentimentSignal) error
	UpdateSignalWeight(ctx context.Context, signalID int64, weight float64) error
	ListSignalsForEntities(ctx context.Context, w SignalWindow, mentions []EntityMention) ([]SentimentSignal, error)
	CountNegativeSignals(ctx context.Context, candidateID int64, since time.Time, minConfidence float64) (int, error)
	ListCriticalSignals(ctx context.Context, candidateID int64, since time.Time, maxScore, minConfidence float64) ([]SignalWithTitle, error)
	ListSignalsForGeo(ctx context.Context, geoUnitID int64, w SignalWindow) ([]SentimentSignal, error)
	ListArticleTextsForGeo(ctx context.Context, geoUnitID int64, w SignalWindow) ([]string, error)

	// Alerts.
	InsertAlert(ctx context.Context, a *Alert) error
	AlertMessageContains(ctx context.Context, userID int64, fragment string) (bool, error)
	ListAlerts(ctx context.Context, userID int64, limit int) ([]Alert, error)

	// Directory.
	GetCandidate(ctx context.Context, id int64) (*Candidate, error)
	CreateCandidate(ctx context.Context, c *Candidate) error
	SetCandidateSubscription(ctx context.Context, id int64, subscribed bool, startedAt time.Time) error
	LinkCandidateUser(ctx context.Context, id, userID int64) error
	ListCandidatesByGeo(ctx context.Context, geoUnitID int64) ([]Candidate, error)
	ListCandidates(ctx context.Context) ([]Candidate, error)
	ListSubscribedCandidatesWithUser(ctx context.Context) ([]Candidate, error)
	GetParty(ctx context.Context, id int64) (*Party, error)
	CreateParty(ctx context.Context, p *Party) error
	GetGeoUnit(ctx context.Context, id int64) (*GeoUnit, error)
	CreateGeoUnit(ctx context.Context, g *GeoUnit) error
	FindGeoUnit(ctx context.Context, nameOrCode string) (*GeoUnit, error)
	LatestResultForCandidate(ctx context.Context, candidateID int64) (*ElectionResult, error)
	TopCandidatesByVotes(ctx context.Context, geoUnitID int64, n int) ([]Candidate, error)
	CreateElectionResult(ctx context.Context, r *ElectionResult) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

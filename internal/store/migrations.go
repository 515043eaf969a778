package store

const schema = `
CREATE TABLE IF NOT EXISTS monitored_entities (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type  TEXT NOT NULL,
    entity_id    INTEGER NOT NULL,
    is_active    BOOLEAN NOT NULL DEFAULT 1,
    priority     INTEGER NOT NULL DEFAULT 5,
    reason       TEXT NOT NULL,
    triggered_by INTEGER NOT NULL DEFAULT 0,
    updated_at   DATETIME NOT NULL,
    UNIQUE(entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_monitored_active ON monitored_entities(is_active, priority);
CREATE INDEX IF NOT EXISTS idx_monitored_trigger ON monitored_entities(triggered_by);

CREATE TABLE IF NOT EXISTS keywords (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    keyword     TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   INTEGER NOT NULL,
    is_active   BOOLEAN NOT NULL DEFAULT 1,
    priority    INTEGER NOT NULL DEFAULT 5,
    UNIQUE(keyword, entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_keywords_entity ON keywords(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS articles (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    title        TEXT NOT NULL,
    summary      TEXT NOT NULL DEFAULT '',
    source_name  TEXT NOT NULL DEFAULT '',
    source_url   TEXT NOT NULL UNIQUE,
    published_at DATETIME NOT NULL,
    status       TEXT NOT NULL DEFAULT 'APPROVED',
    ingest_type  TEXT NOT NULL DEFAULT 'API',
    created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);

CREATE TABLE IF NOT EXISTS entity_mentions (
    article_id  INTEGER NOT NULL REFERENCES articles(id),
    entity_type TEXT NOT NULL,
    entity_id   INTEGER NOT NULL,
    UNIQUE(article_id, entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_mentions_entity ON entity_mentions(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS sentiment_signals (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    geo_unit_id      INTEGER NOT NULL,
    source_ref_id    INTEGER NOT NULL REFERENCES articles(id),
    sentiment        TEXT NOT NULL,
    sentiment_score  REAL NOT NULL,
    confidence       REAL NOT NULL,
    relevance_weight REAL,
    created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_geo ON sentiment_signals(geo_unit_id, created_at);
CREATE INDEX IF NOT EXISTS idx_signals_created ON sentiment_signals(created_at);
CREATE INDEX IF NOT EXISTS idx_signals_article ON sentiment_signals(source_ref_id);

CREATE TABLE IF NOT EXISTS alerts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     INTEGER NOT NULL,
    geo_unit_id INTEGER NOT NULL,
    type        TEXT NOT NULL,
    message     TEXT NOT NULL,
    is_read     BOOLEAN NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id, created_at);

CREATE TABLE IF NOT EXISTS candidates (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    full_name             TEXT NOT NULL,
    party_id              INTEGER NOT NULL DEFAULT 0,
    geo_unit_id           INTEGER NOT NULL DEFAULT 0,
    user_id               INTEGER,
    subscribed            BOOLEAN NOT NULL DEFAULT 0,
    monitoring_started_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_candidates_geo ON candidates(geo_unit_id);

CREATE TABLE IF NOT EXISTS parties (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL,
    abbreviation TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS geo_units (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    code TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS election_results (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    candidate_id   INTEGER NOT NULL,
    candidate_name TEXT NOT NULL DEFAULT '',
    geo_unit_id    INTEGER NOT NULL,
    party_id       INTEGER NOT NULL DEFAULT 0,
    votes          INTEGER NOT NULL DEFAULT 0,
    election_date  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_geo ON election_results(geo_unit_id, election_date);
CREATE INDEX IF NOT EXISTS idx_results_candidate ON election_results(candidate_id, election_date);
`

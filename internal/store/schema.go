package store

import "context"

// Schema is the DDL for every table the service owns. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    kind         TEXT NOT NULL CHECK (kind IN ('scrape', 'affiliate')),
    base_url     TEXT NOT NULL DEFAULT '',
    fetch_url    TEXT NOT NULL,
    rules        JSONB NOT NULL DEFAULT '{}'::jsonb,
    active       BOOLEAN NOT NULL DEFAULT true,
    last_run_at  TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sources_kind_active ON sources (kind) WHERE active;

CREATE TABLE IF NOT EXISTS listings (
    id             UUID PRIMARY KEY,
    source_id      TEXT NOT NULL,
    source_name    TEXT NOT NULL,
    source_url     TEXT NOT NULL,
    title          TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    price          DOUBLE PRECISION,
    currency       TEXT NOT NULL,
    location       TEXT NOT NULL,
    image_urls     TEXT[] NOT NULL DEFAULT '{}',
    category       TEXT NOT NULL,
    tags           TEXT[] NOT NULL DEFAULT '{}',
    breed          TEXT NOT NULL,
    age            TEXT,
    gender         TEXT NOT NULL,
    contact_email  TEXT,
    contact_phone  TEXT,
    last_seen_at   TIMESTAMPTZ NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (source_id, source_url)
);

CREATE TABLE IF NOT EXISTS products (
    id                 UUID PRIMARY KEY,
    network_id         TEXT NOT NULL,
    external_id        TEXT NOT NULL UNIQUE,
    title              TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    short_description  TEXT NOT NULL DEFAULT '',
    price              DOUBLE PRECISION NOT NULL DEFAULT 0,
    original_price     DOUBLE PRECISION,
    currency           TEXT NOT NULL,
    image_url          TEXT NOT NULL DEFAULT '',
    category           TEXT NOT NULL,
    subcategory        TEXT NOT NULL,
    brand              TEXT NOT NULL DEFAULT '',
    affiliate_link     TEXT NOT NULL DEFAULT '',
    seo_title          TEXT NOT NULL,
    seo_description    TEXT NOT NULL,
    tags               TEXT[] NOT NULL DEFAULT '{}',
    last_price_check   TIMESTAMPTZ NOT NULL,
    is_featured        BOOLEAN NOT NULL DEFAULT false,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_products_network ON products (network_id);

CREATE TABLE IF NOT EXISTS run_log (
    id          UUID PRIMARY KEY,
    task_type   TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    status      TEXT NOT NULL CHECK (status IN ('success', 'error')),
    detail      JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_run_log_task_started ON run_log (task_type, started_at DESC);
`

// ApplySchema creates any missing tables and indexes.
func (s *Store) ApplySchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return wrap("apply schema", err)
}

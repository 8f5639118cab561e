package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"pawhub/ingest-service/internal/model"
)

const sourceColumns = `id, name, kind, base_url, fetch_url, rules, active, last_run_at`

// ActiveSources returns the active sources of one kind, least recently run
// first.
func (s *Store) ActiveSources(ctx context.Context, kind model.SourceKind) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+`
		 FROM sources
		 WHERE active AND kind = $1
		 ORDER BY last_run_at ASC NULLS FIRST, id`,
		string(kind),
	)
	if err != nil {
		return nil, wrap("active sources", err)
	}
	defer rows.Close()

	sources := make([]model.Source, 0)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, wrap("active sources scan", err)
		}
		sources = append(sources, src)
	}
	return sources, wrap("active sources", rows.Err())
}

// ListSources returns every configured source.
func (s *Store) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY kind, id`)
	if err != nil {
		return nil, wrap("list sources", err)
	}
	defer rows.Close()

	sources := make([]model.Source, 0)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, wrap("list sources scan", err)
		}
		sources = append(sources, src)
	}
	return sources, wrap("list sources", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (model.Source, error) {
	var (
		src   model.Source
		kind  string
		rules []byte
	)
	if err := row.Scan(&src.ID, &src.Name, &kind, &src.BaseURL, &src.FetchURL, &rules, &src.Active, &src.LastRunAt); err != nil {
		return model.Source{}, err
	}
	src.Kind = model.SourceKind(kind)
	decodeRules(&src, rules)
	return src, nil
}

// decodeRules fills src.Rules from the stored jsonb. A row whose rules do
// not decode keeps zero rules and carries the error in RulesErr, so one bad
// row cannot stop the other sources of its kind.
func decodeRules(src *model.Source, raw []byte) {
	if len(raw) == 0 {
		return
	}
	var rules model.RuleSet
	if err := json.Unmarshal(raw, &rules); err != nil {
		slog.Warn("source rules do not decode, skipping source", "source", src.ID, "err", err)
		src.RulesErr = err
		return
	}
	src.Rules = rules
}

// TouchSource records the start time of the run that just completed the
// source.
func (s *Store) TouchSource(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sources SET last_run_at = $2, updated_at = now() WHERE id = $1`,
		id, at,
	)
	return wrap("touch source", err)
}

// UpsertSource creates or replaces a source's configuration. last_run_at
// is left untouched.
func (s *Store) UpsertSource(ctx context.Context, src model.Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	rules, err := json.Marshal(src.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules for %s: %w", src.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sources (id, name, kind, base_url, fetch_url, rules, active)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   kind = EXCLUDED.kind,
		   base_url = EXCLUDED.base_url,
		   fetch_url = EXCLUDED.fetch_url,
		   rules = EXCLUDED.rules,
		   active = EXCLUDED.active,
		   updated_at = now()`,
		src.ID, src.Name, string(src.Kind), src.BaseURL, src.FetchURL, string(rules), src.Active,
	)
	return wrap("upsert source", err)
}

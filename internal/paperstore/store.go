package paperstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/papercast-labs/papercast-core/internal/config"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no paper exists for a DOI.
var ErrNotFound = errors.New("paper not found")

// Store is the document record access used by the synthesis worker and the
// delivery endpoints. Reads surface the full record; writes only ever
// replace the clip-URL list.
type Store interface {
	Get(ctx context.Context, doi string) (Paper, error)
	UpdateClips(ctx context.Context, doi string, urls []string) error
}

// SQLiteStore keeps paper records in a local SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the paper store according to config.
func Open(ctx context.Context, cfg config.PaperStoreConfig, log *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("paper store vacuum failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS papers (
    doi TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    sections_json TEXT,
    clip_urls TEXT,
    updated_at TIMESTAMP NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get loads the paper record for a DOI. An undecodable clip list or
// sections structure reads as empty rather than failing the call.
func (s *SQLiteStore) Get(ctx context.Context, doi string) (Paper, error) {
	var (
		title    string
		sections sql.NullString
		clips    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT title, sections_json, clip_urls FROM papers WHERE doi = ?`, doi).
		Scan(&title, &sections, &clips)
	if errors.Is(err, sql.ErrNoRows) {
		return Paper{}, ErrNotFound
	}
	if err != nil {
		return Paper{}, fmt.Errorf("query paper: %w", err)
	}

	p := Paper{DOI: doi, Title: title}
	if secs, ok := decodeSections(sections.String); ok {
		p.Sections = secs
	} else {
		s.log.Warn("undecodable sections structure", slog.String("doi", doi))
	}
	if urls, ok := decodeClips(clips.String); ok {
		p.ClipURLs = urls
	} else {
		s.log.Warn("undecodable clip list, treating as empty", slog.String("doi", doi))
	}
	return p, nil
}

// UpdateClips replaces the stored clip-URL list with the given list.
func (s *SQLiteStore) UpdateClips(ctx context.Context, doi string, urls []string) error {
	encoded, err := encodeClips(urls)
	if err != nil {
		return fmt.Errorf("encode clip list: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE papers SET clip_urls = ?, updated_at = ? WHERE doi = ?`,
		encoded, s.clock().UTC(), doi)
	if err != nil {
		return fmt.Errorf("update clip list: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Put inserts or replaces a paper record. Used by ingestion and tests;
// the audio pipeline itself never creates papers.
func (s *SQLiteStore) Put(ctx context.Context, p Paper) error {
	sectionsJSON, err := json.Marshal(p.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	clipsJSON, err := encodeClips(p.ClipURLs)
	if err != nil {
		return fmt.Errorf("encode clip list: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO papers(doi, title, sections_json, clip_urls, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(doi) DO UPDATE SET title=excluded.title,
		   sections_json=excluded.sections_json,
		   clip_urls=excluded.clip_urls,
		   updated_at=excluded.updated_at`,
		p.DOI, p.Title, string(sectionsJSON), clipsJSON, s.clock().UTC())
	return err
}

// putRawClips writes an arbitrary value into the clip column, bypassing the
// canonical encoding. Test seam for legacy/corrupt rows.
func (s *SQLiteStore) putRawClips(ctx context.Context, doi, raw string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE papers SET clip_urls = ?, updated_at = ? WHERE doi = ?`,
		raw, s.clock().UTC(), doi)
	return err
}

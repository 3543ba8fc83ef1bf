package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/project-tktt/job-scout/internal/domain"
)

// uniqueViolation is the postgres SQLSTATE for a unique-constraint breach.
const uniqueViolation = "23505"

// Postgres is the persistence sink. It also serves as the duplicate index,
// since both are views over the same url-unique table.
type Postgres struct {
	db        *sql.DB
	tableName string
}

// NewPostgres opens a connection and bootstraps the jobs table.
func NewPostgres(connStr, tableName string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{db: db, tableName: tableName}
	if err := p.ensureTable(); err != nil {
		return nil, fmt.Errorf("ensure table: %w", err)
	}
	return p, nil
}

func (p *Postgres) ensureTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			company TEXT,
			description TEXT,
			url TEXT NOT NULL UNIQUE,
			source TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			is_relevant BOOLEAN NOT NULL DEFAULT FALSE,
			relevance_reasoning TEXT,
			region TEXT,
			job_type TEXT,
			experience TEXT,
			salary TEXT,
			posted_date TIMESTAMP WITH TIME ZONE,
			notes TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, p.tableName)

	_, err := p.db.Exec(query)
	return err
}

// Insert stores a single record. A URL conflict returns ErrDuplicate.
func (p *Postgres) Insert(ctx context.Context, rec domain.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			title, company, description, url, source, status,
			is_relevant, relevance_reasoning, region, job_type,
			experience, salary, posted_date, notes, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, NOW()
		)
	`, p.tableName)

	_, err := p.db.ExecContext(ctx, query,
		rec.Title, rec.Company, rec.Description, rec.URL, rec.Source, string(rec.Status),
		rec.IsRelevant, rec.RelevanceReasoning, rec.Region, rec.JobType,
		rec.Experience, rec.Salary, rec.PostedDate, rec.Notes,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("insert %s: %w", rec.URL, ErrDuplicate)
		}
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// InsertManual stores a hand-entered posting. It starts APPROVED and
// relevant; an existing URL is rejected with ErrDuplicate.
func (p *Postgres) InsertManual(ctx context.Context, title, company, link, notes string) error {
	return p.Insert(ctx, domain.NewManualRecord(title, company, link, notes))
}

// Exists reports whether a posting with this URL is already stored.
func (p *Postgres) Exists(ctx context.Context, url string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE url = $1`, p.tableName)

	var one int
	err := p.db.QueryRowContext(ctx, query, url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query url: %w", err)
	}
	return true, nil
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

var (
	_ Sink           = (*Postgres)(nil)
	_ DuplicateIndex = (*Postgres)(nil)
)

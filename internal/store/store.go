package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/dachjobs/go-crawler/internal/domain"
	"github.com/dachjobs/go-crawler/internal/fingerprint"
)

// Thin-record threshold: descriptions below this length (or equal to the
// title) are eligible for re-enrichment.
const thinDescriptionLen = 600

// Store persists vacancy records and salary history in PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens a connection and ensures the schema exists.
func New(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS vacancies (
			fingerprint TEXT PRIMARY KEY,
			external_id TEXT,
			title TEXT,
			company TEXT,
			location TEXT,
			country TEXT,
			salary_min DOUBLE PRECISION,
			salary_max DOUBLE PRECISION,
			salary_is_predicted BOOLEAN DEFAULT FALSE,
			description TEXT DEFAULT '',
			created TEXT,
			url TEXT,
			search_query TEXT,
			search_level TEXT,
			first_seen TEXT,
			last_seen TEXT,
			source TEXT,
			translated_title TEXT DEFAULT '',
			extracted_skills TEXT DEFAULT '',
			is_active BOOLEAN DEFAULT TRUE
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS salary_history (
			country TEXT,
			role TEXT,
			month TEXT,
			avg_salary DOUBLE PRECISION,
			UNIQUE (country, role, month)
		)
	`)
	return err
}

// Upsert writes one listing, reconciling against any existing record
// with the same fingerprint. Returns true when the fingerprint is new.
func (s *Store) Upsert(ctx context.Context, in domain.RawListing) (bool, error) {
	if in.Title == "" {
		return false, fmt.Errorf("listing has no title")
	}

	fp := fingerprint.Fingerprint(in.Title, in.Company, in.Location)
	today := s.now().Format("2006-01-02")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.getTx(ctx, tx, fp)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("read existing: %w", err)
	}

	isNew := err == sql.ErrNoRows
	var rec domain.VacancyRecord
	if isNew {
		rec = newRecord(fp, in, today)
		if err := insertTx(ctx, tx, rec); err != nil {
			return false, fmt.Errorf("insert: %w", err)
		}
	} else {
		rec = merge(existing, in, today)
		if err := updateTx(ctx, tx, rec); err != nil {
			return false, fmt.Errorf("update: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	return isNew, nil
}

// UpsertBatch writes a sequence of listings. A failure on one record is
// logged and skipped; it never aborts the batch. Returns the count of
// genuinely new fingerprints.
func (s *Store) UpsertBatch(ctx context.Context, listings []domain.RawListing) (int, error) {
	newCount := 0
	for _, in := range listings {
		isNew, err := s.Upsert(ctx, in)
		if err != nil {
			log.Printf("[store] upsert error for %q: %v", in.Title, err)
			continue
		}
		if isNew {
			newCount++
		}
	}
	return newCount, nil
}

func (s *Store) getTx(ctx context.Context, tx *sql.Tx, fp string) (domain.VacancyRecord, error) {
	var rec domain.VacancyRecord
	err := tx.QueryRowContext(ctx, `
		SELECT fingerprint, external_id, title, company, location, country,
		       salary_min, salary_max, salary_is_predicted, description,
		       created, url, search_query, search_level, first_seen,
		       last_seen, source, translated_title, extracted_skills, is_active
		FROM vacancies WHERE fingerprint = $1
	`, fp).Scan(
		&rec.Fingerprint, &rec.ExternalID, &rec.Title, &rec.Company,
		&rec.Location, &rec.Country, &rec.SalaryMin, &rec.SalaryMax,
		&rec.SalaryIsPredicted, &rec.Description, &rec.Created, &rec.URL,
		&rec.SearchQuery, &rec.SearchLevel, &rec.FirstSeen, &rec.LastSeen,
		&rec.Source, &rec.TranslatedTitle, &rec.ExtractedSkills, &rec.IsActive,
	)
	return rec, err
}

func insertTx(ctx context.Context, tx *sql.Tx, rec domain.VacancyRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vacancies (
			fingerprint, external_id, title, company, location, country,
			salary_min, salary_max, salary_is_predicted, description,
			created, url, search_query, search_level, first_seen,
			last_seen, source, translated_title, extracted_skills, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		          $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		rec.Fingerprint, rec.ExternalID, rec.Title, rec.Company,
		rec.Location, rec.Country, rec.SalaryMin, rec.SalaryMax,
		rec.SalaryIsPredicted, rec.Description, rec.Created, rec.URL,
		rec.SearchQuery, rec.SearchLevel, rec.FirstSeen, rec.LastSeen,
		rec.Source, rec.TranslatedTitle, rec.ExtractedSkills, rec.IsActive,
	)
	return err
}

func updateTx(ctx context.Context, tx *sql.Tx, rec domain.VacancyRecord) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE vacancies SET
			last_seen = $2, url = $3, description = $4,
			salary_min = $5, salary_max = $6, salary_is_predicted = $7,
			source = $8
		WHERE fingerprint = $1
	`,
		rec.Fingerprint, rec.LastSeen, rec.URL, rec.Description,
		rec.SalaryMin, rec.SalaryMax, rec.SalaryIsPredicted, rec.Source,
	)
	return err
}

// PendingEnrichment snapshots active thin records, newest sightings
// first. An empty sourceFilter selects all sources.
func (s *Store) PendingEnrichment(ctx context.Context, limit int, sourceFilter string) ([]domain.PendingVacancy, error) {
	query := `
		SELECT fingerprint, url, source, title FROM vacancies
		WHERE (length(description) < $1 OR description = title)
		AND is_active = TRUE
	`
	args := []any{thinDescriptionLen}
	if sourceFilter != "" {
		query += " AND source = $2"
		args = append(args, sourceFilter)
	}
	query += fmt.Sprintf(" ORDER BY last_seen DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var pending []domain.PendingVacancy
	for rows.Next() {
		var p domain.PendingVacancy
		if err := rows.Scan(&p.Fingerprint, &p.URL, &p.Source, &p.Title); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// UpdateEnrichment writes back an enriched description and salary range.
// The description only grows and salary is null-coalescing, so the write
// is a no-op when the stored data is already as good. Returns whether a
// row actually changed.
func (s *Store) UpdateEnrichment(ctx context.Context, fp, desc string, salaryMin, salaryMax *float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vacancies SET
			description = CASE WHEN length($2) > length(description) THEN $2 ELSE description END,
			salary_min = COALESCE(salary_min, $3),
			salary_max = COALESCE(salary_max, $4)
		WHERE fingerprint = $1
		AND (length($2) > length(description)
		     OR (salary_min IS NULL AND $3 IS NOT NULL)
		     OR (salary_max IS NULL AND $4 IS NOT NULL))
	`, fp, desc, salaryMin, salaryMax)
	if err != nil {
		return false, fmt.Errorf("update enrichment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// AllForTagging streams the fields the skill tagger needs.
func (s *Store) AllForTagging(ctx context.Context) ([]domain.VacancyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, title, description, source FROM vacancies
	`)
	if err != nil {
		return nil, fmt.Errorf("query vacancies: %w", err)
	}
	defer rows.Close()

	var recs []domain.VacancyRecord
	for rows.Next() {
		var rec domain.VacancyRecord
		if err := rows.Scan(&rec.Fingerprint, &rec.Title, &rec.Description, &rec.Source); err != nil {
			return nil, fmt.Errorf("scan vacancy: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// All returns every stored record, for search-mirror indexing.
func (s *Store) All(ctx context.Context) ([]*domain.VacancyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, external_id, title, company, location, country,
		       salary_min, salary_max, salary_is_predicted, description,
		       created, url, search_query, search_level, first_seen,
		       last_seen, source, translated_title, extracted_skills, is_active
		FROM vacancies
	`)
	if err != nil {
		return nil, fmt.Errorf("query vacancies: %w", err)
	}
	defer rows.Close()

	var recs []*domain.VacancyRecord
	for rows.Next() {
		var rec domain.VacancyRecord
		if err := rows.Scan(
			&rec.Fingerprint, &rec.ExternalID, &rec.Title, &rec.Company,
			&rec.Location, &rec.Country, &rec.SalaryMin, &rec.SalaryMax,
			&rec.SalaryIsPredicted, &rec.Description, &rec.Created, &rec.URL,
			&rec.SearchQuery, &rec.SearchLevel, &rec.FirstSeen, &rec.LastSeen,
			&rec.Source, &rec.TranslatedTitle, &rec.ExtractedSkills, &rec.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan vacancy: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// UpdateSkills writes the comma-joined tag list for one record.
func (s *Store) UpdateSkills(ctx context.Context, fp, skills string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vacancies SET extracted_skills = $2 WHERE fingerprint = $1`, fp, skills)
	if err != nil {
		return fmt.Errorf("update skills: %w", err)
	}
	return nil
}

// UntranslatedTitles returns records still waiting for a translated title.
func (s *Store) UntranslatedTitles(ctx context.Context, limit int) ([]domain.VacancyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, title, search_level FROM vacancies
		WHERE translated_title = '' ORDER BY last_seen DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query untranslated: %w", err)
	}
	defer rows.Close()

	var recs []domain.VacancyRecord
	for rows.Next() {
		var rec domain.VacancyRecord
		if err := rows.Scan(&rec.Fingerprint, &rec.Title, &rec.SearchLevel); err != nil {
			return nil, fmt.Errorf("scan untranslated: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// UpdateTranslatedTitle stores a title translation.
func (s *Store) UpdateTranslatedTitle(ctx context.Context, fp, translated string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vacancies SET translated_title = $2 WHERE fingerprint = $1`, fp, translated)
	if err != nil {
		return fmt.Errorf("update translated title: %w", err)
	}
	return nil
}

// SaveSalaryHistory upserts monthly average salaries for a role/country.
func (s *Store) SaveSalaryHistory(ctx context.Context, country, role string, byMonth map[string]float64) error {
	if len(byMonth) == 0 {
		return nil
	}

	for month, avg := range byMonth {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO salary_history (country, role, month, avg_salary)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (country, role, month) DO UPDATE SET
				avg_salary = EXCLUDED.avg_salary
		`, strings.ToUpper(country), role, month, avg)
		if err != nil {
			log.Printf("[store] salary history error for %s/%s/%s: %v", country, role, month, err)
		}
	}
	return nil
}

// SalaryHistory reads history points, optionally filtered.
func (s *Store) SalaryHistory(ctx context.Context, country, role string) ([]domain.SalaryHistoryPoint, error) {
	query := "SELECT country, role, month, avg_salary FROM salary_history WHERE 1=1"
	var args []any
	if country != "" {
		args = append(args, strings.ToUpper(country))
		query += fmt.Sprintf(" AND country = $%d", len(args))
	}
	if role != "" {
		args = append(args, role)
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	query += " ORDER BY month ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query salary history: %w", err)
	}
	defer rows.Close()

	var points []domain.SalaryHistoryPoint
	for rows.Next() {
		var p domain.SalaryHistoryPoint
		if err := rows.Scan(&p.Country, &p.Role, &p.Month, &p.AvgSalary); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Reset wipes both tables. Only an explicit operator action calls this.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM vacancies"); err != nil {
		return fmt.Errorf("clear vacancies: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM salary_history"); err != nil {
		return fmt.Errorf("clear salary history: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

// RatingsRepository persists rating records. Rows are insert-only.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

var ratingColumns = []string{
	"storage_key",
	"category",
	"city",
	"location_name",
	"scores",
	"opinion",
	"user_id",
	"submitted_at",
}

// InsertIfAbsent stores rec under storageKey unless a row for the key, or for the same
// (category, city, location, user), already exists. It reports whether a row was written.
func (r *RatingsRepository) InsertIfAbsent(ctx context.Context, storageKey string, rec domain.RatingRecord) (bool, error) {
	scores, err := marshalScores(rec.Scores)
	if err != nil {
		return false, err
	}
	submitted := rec.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}

	query := builder().Insert(tableRatings).
		Columns(ratingColumns...).
		Values(storageKey, string(rec.Category), rec.City, rec.LocationName, scores, rec.Opinion, rec.UserID, submitted).
		Suffix("ON CONFLICT DO NOTHING RETURNING storage_key")

	sql, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	var stored string
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&stored); err != nil {
		if wrapErr(err) == ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("insert rating: %w", err)
	}
	return true, nil
}

// ListAll returns every record in insertion order.
func (r *RatingsRepository) ListAll(ctx context.Context) ([]domain.RatingRecord, error) {
	return r.list(ctx, builder().Select(ratingColumns...).From(tableRatings).OrderBy("seq"))
}

// ListByUser returns the records submitted by one user in insertion order.
func (r *RatingsRepository) ListByUser(ctx context.Context, userID string) ([]domain.RatingRecord, error) {
	return r.list(ctx, builder().Select(ratingColumns...).
		From(tableRatings).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("seq"))
}

// Get fetches one record by storage key.
func (r *RatingsRepository) Get(ctx context.Context, storageKey string) (domain.RatingRecord, error) {
	sql, args, err := builder().Select(ratingColumns...).
		From(tableRatings).
		Where(squirrel.Eq{"storage_key": storageKey}).
		ToSql()
	if err != nil {
		return domain.RatingRecord{}, fmt.Errorf("build select: %w", err)
	}
	rec, err := scanRating(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return domain.RatingRecord{}, wrapErr(err)
	}
	return rec, nil
}

// Count returns the number of stored records.
func (r *RatingsRepository) Count(ctx context.Context) (int, error) {
	sql, args, err := builder().Select("COUNT(*)").From(tableRatings).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ratings: %w", err)
	}
	return n, nil
}

func (r *RatingsRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]domain.RatingRecord, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	records := make([]domain.RatingRecord, 0)
	for rows.Next() {
		rec, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRating(row pgx.Row) (domain.RatingRecord, error) {
	var (
		rec        domain.RatingRecord
		storageKey string
		category   string
		scoresJSON []byte
	)
	err := row.Scan(
		&storageKey,
		&category,
		&rec.City,
		&rec.LocationName,
		&scoresJSON,
		&rec.Opinion,
		&rec.UserID,
		&rec.SubmittedAt,
	)
	if err != nil {
		return domain.RatingRecord{}, err
	}
	rec.Category = domain.Category(category)
	rec.SubmittedAt = rec.SubmittedAt.UTC()
	rec.Scores = map[string]int{}
	if len(scoresJSON) > 0 {
		if err := json.Unmarshal(scoresJSON, &rec.Scores); err != nil {
			return domain.RatingRecord{}, fmt.Errorf("decode scores of %s: %w", storageKey, err)
		}
	}
	return rec, nil
}

func marshalScores(scores map[string]int) (string, error) {
	if scores == nil {
		scores = map[string]int{}
	}
	b, err := json.Marshal(scores)
	if err != nil {
		return "", fmt.Errorf("encode scores: %w", err)
	}
	return string(b), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
)

const (
	recordStatusPending   = "pending"
	recordStatusCompleted = "completed"

	// Two racing inserts of the same key lose at most once each before the
	// loser observes the winner's row.
	maxBeginAttempts = 3
)

type DBIdempotencyStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBIdempotencyStore(db *gorm.DB) *DBIdempotencyStore {
	return &DBIdempotencyStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *DBIdempotencyStore) Begin(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyBeginResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxBeginAttempts; attempt++ {
		result, err := s.begin(ctx, scope, key, fingerprint, ttl)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return IdempotencyBeginResult{}, err
		}
		lastErr = err
	}
	return IdempotencyBeginResult{}, fmt.Errorf("begin idempotency key after %d attempts: %w", maxBeginAttempts, lastErr)
}

func (s *DBIdempotencyStore) begin(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyBeginResult, error) {
	now := s.now()
	var result IdempotencyBeginResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.IdempotencyRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("scope = ? AND idempotency_key = ?", scope, key).
			Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.State = IdempotencyStateNew
			return tx.Create(&domain.IdempotencyRecord{
				Scope:           scope,
				IdempotencyKey:  key,
				FingerprintHash: fingerprint,
				Status:          recordStatusPending,
				ExpiresAt:       now.Add(ttl),
			}).Error
		}
		if err != nil {
			return err
		}

		if !rec.ExpiresAt.After(now) {
			result.State = IdempotencyStateNew
			return tx.Model(&rec).Updates(map[string]any{
				"fingerprint_hash": fingerprint,
				"status":           recordStatusPending,
				"response_status":  0,
				"response_body":    nil,
				"content_type":     "",
				"expires_at":       now.Add(ttl),
			}).Error
		}

		switch {
		case rec.FingerprintHash != fingerprint:
			result.State = IdempotencyStateConflict
		case rec.Status == recordStatusCompleted:
			result.State = IdempotencyStateReplay
			result.Cached = &CachedHTTPResponse{
				StatusCode:  rec.ResponseStatus,
				ContentType: rec.ContentType,
				Body:        append([]byte(nil), rec.ResponseBody...),
			}
		default:
			result.State = IdempotencyStateInProgress
		}
		return nil
	})
	if err != nil {
		return IdempotencyBeginResult{}, err
	}
	return result, nil
}

func (s *DBIdempotencyStore) Complete(ctx context.Context, scope, key, fingerprint string, response CachedHTTPResponse, ttl time.Duration) error {
	return s.db.WithContext(ctx).Model(&domain.IdempotencyRecord{}).
		Where("scope = ? AND idempotency_key = ? AND fingerprint_hash = ?", scope, key, fingerprint).
		Where("status <> ?", recordStatusCompleted).
		Updates(map[string]any{
			"status":          recordStatusCompleted,
			"response_status": response.StatusCode,
			"response_body":   response.Body,
			"content_type":    response.ContentType,
			"expires_at":      s.now().Add(ttl),
		}).Error
}

func (s *DBIdempotencyStore) Release(ctx context.Context, scope, key, fingerprint string) error {
	return s.db.WithContext(ctx).
		Where("scope = ? AND idempotency_key = ? AND fingerprint_hash = ?", scope, key, fingerprint).
		Where("status <> ?", recordStatusCompleted).
		Delete(&domain.IdempotencyRecord{}).Error
}

func (s *DBIdempotencyStore) CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	scoped := s.db.WithContext(ctx)
	sub := scoped.Model(&domain.IdempotencyRecord{}).
		Select("id").
		Where("expires_at <= ?", now.UTC()).
		Order("id ASC").
		Limit(batchSize)
	res := scoped.Where("id IN (?)", sub).Delete(&domain.IdempotencyRecord{})
	if res.Error != nil {
		observability.RecordIdempotencyCleanupRun(ctx, "error")
		return 0, res.Error
	}
	observability.RecordIdempotencyCleanupRun(ctx, "success")
	observability.RecordIdempotencyCleanupDeletedRows(ctx, res.RowsAffected)
	return res.RowsAffected, nil
}

func (s *DBIdempotencyStore) RunCleanupLoop(ctx context.Context, interval time.Duration, batchSize int, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.CleanupExpired(ctx, s.now(), batchSize)
			if err != nil {
				if logger != nil {
					logger.Warn("idempotency db cleanup failed", "error", err)
				}
				continue
			}
			if deleted > 0 && logger != nil {
				logger.Info("idempotency db cleanup removed expired records", "deleted", deleted)
			}
		}
	}
}

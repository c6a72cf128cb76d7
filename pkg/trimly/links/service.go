package links

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/trimly/trimly/pkg/trimly/cache"
	"github.com/trimly/trimly/pkg/trimly/models"
	"github.com/trimly/trimly/pkg/trimly/tasks"
	"gorm.io/gorm"
)

// Service orchestrates link operations across the store (source of truth)
// and the cache (derived accelerator). Cache failures degrade to store-only
// operation; store failures fail the operation.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	runner *tasks.Runner
	log    zerolog.Logger
}

// NewService creates a link service.
func NewService(db *gorm.DB, c cache.Cache, runner *tasks.Runner, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		runner: runner,
		log:    log.With().Str("component", "links").Logger(),
	}
}

// CreateParams are the caller-supplied fields for a new link.
type CreateParams struct {
	OriginalURL string
	CustomAlias string
	ExpiresAt   *time.Time
	OwnerID     *uint
	Project     string
}

// Create validates the URL, resolves a short code, inserts the store row,
// writes through to the cache and, for links with a future expiry, arms a
// one-shot deletion timer for that instant.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Link, error) {
	if err := validateURL(p.OriginalURL); err != nil {
		return nil, err
	}

	var code string
	if p.CustomAlias != "" {
		if err := validateAlias(p.CustomAlias); err != nil {
			return nil, err
		}
		var existing models.Link
		err := s.db.WithContext(ctx).Where("short_code = ?", p.CustomAlias).First(&existing).Error
		if err == nil {
			return nil, ErrAliasTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		code = p.CustomAlias
	} else {
		var err error
		code, err = createUniqueCode(s.db.WithContext(ctx))
		if err != nil {
			return nil, err
		}
	}

	link := models.Link{
		ShortCode:   code,
		OriginalURL: p.OriginalURL,
		ExpiresAt:   p.ExpiresAt,
		OwnerID:     p.OwnerID,
		Project:     p.Project,
	}
	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		return nil, err
	}

	// Write-through is best-effort: the cache is an accelerator and must not
	// fail the create. Skipped for already-expired links so an expired row
	// can never be served from cache.
	if !link.IsExpired(time.Now().UTC()) {
		if err := s.cache.Set(ctx, cache.LinkKey(code), link.OriginalURL, 0); err != nil {
			s.log.Warn().Err(err).Str("short_code", code).Msg("cache write-through failed")
		}
	}

	if link.ExpiresAt != nil {
		if d := time.Until(*link.ExpiresAt); d > 0 {
			s.scheduleReap(code, d)
		}
	}

	return &link, nil
}

// Get returns the link record for its stats view. Store only.
func (s *Service) Get(ctx context.Context, code string) (*models.Link, error) {
	var link models.Link
	err := s.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// Update replaces the destination URL. Ownership is checked against the
// store record; the cache carries no ownership data.
func (s *Service) Update(ctx context.Context, code, newURL string, callerID uint) (*models.Link, error) {
	if err := validateURL(newURL); err != nil {
		return nil, err
	}

	link, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !link.IsOwnedBy(callerID) {
		return nil, ErrForbidden
	}

	// Column-level update: a full-row Save would race the async click-count
	// bumps and write back a stale count.
	if err := s.db.WithContext(ctx).Model(link).Update("original_url", newURL).Error; err != nil {
		return nil, err
	}

	// Overwrite so a warm cache serves the new destination immediately.
	if err := s.cache.Set(ctx, cache.LinkKey(code), link.OriginalURL, 0); err != nil {
		s.log.Warn().Err(err).Str("short_code", code).Msg("cache refresh failed")
	}

	return link, nil
}

// Delete removes an owned link: cache entry first, then the store row.
func (s *Service) Delete(ctx context.Context, code string, callerID uint) error {
	link, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if !link.IsOwnedBy(callerID) {
		return ErrForbidden
	}

	if err := s.cache.Del(ctx, cache.LinkKey(code)); err != nil {
		s.log.Warn().Err(err).Str("short_code", code).Msg("cache evict failed")
	}
	return s.db.WithContext(ctx).Delete(&models.Link{}, link.ID).Error
}

// Search returns links whose destination contains the given substring.
func (s *Service) Search(ctx context.Context, substr string) ([]models.Link, error) {
	var found []models.Link
	err := s.db.WithContext(ctx).
		Where("original_url LIKE ?", "%"+substr+"%").
		Order("created_at DESC").
		Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Resolve maps a short code to its destination. Cache hits return
// immediately and bump stats off the hot path; misses fall back to the
// store, bump synchronously and repopulate the cache. A cache hit is
// trusted without re-checking expiry; the sweeper lazily corrects entries
// whose row has expired since.
func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	dest, err := s.cache.Get(ctx, cache.LinkKey(code))
	if err == nil {
		s.runner.Submit(func() { s.bumpStats(code) })
		return dest, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn().Err(err).Msg("cache unavailable, serving from store")
	}

	link, err := s.Get(ctx, code)
	if err != nil {
		return "", err
	}
	if link.IsExpired(time.Now().UTC()) {
		// Not yet swept, but logically dead.
		return "", ErrExpired
	}

	if err := s.bumpStatsCtx(ctx, code); err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, cache.LinkKey(code), link.OriginalURL, 0); err != nil {
		s.log.Warn().Err(err).Str("short_code", code).Msg("cache repopulate failed")
	}

	return link.OriginalURL, nil
}

// bumpStats is the fire-and-forget variant; failures are logged, never
// surfaced, never retried.
func (s *Service) bumpStats(code string) {
	if err := s.bumpStatsCtx(context.Background(), code); err != nil {
		s.log.Warn().Err(err).Str("short_code", code).Msg("stats update failed")
	}
}

// bumpStatsCtx persists one click as a single atomic UPDATE so concurrent
// redirects never lose increments and readers are never blocked.
func (s *Service) bumpStatsCtx(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Model(&models.Link{}).
		Where("short_code = ?", code).
		Updates(map[string]interface{}{
			"click_count":  gorm.Expr("click_count + ?", 1),
			"last_used_at": time.Now().UTC(),
		}).Error
}

// CleanupExpired removes every link whose expiry has passed, evicting each
// from the cache before deleting its row. Running it again immediately is a
// no-op returning 0.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	var expired []models.Link
	err := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now().UTC()).
		Find(&expired).Error
	if err != nil {
		return 0, err
	}

	count := 0
	for _, link := range expired {
		if err := s.cache.Del(ctx, cache.LinkKey(link.ShortCode)); err != nil {
			s.log.Warn().Err(err).Str("short_code", link.ShortCode).Msg("cache evict failed")
		}
		if err := s.db.WithContext(ctx).Delete(&models.Link{}, link.ID).Error; err != nil {
			s.log.Error().Err(err).Str("short_code", link.ShortCode).Msg("sweep delete failed")
			continue
		}
		count++
	}
	return count, nil
}

// scheduleReap arms a one-shot timer for the link's expiry instant. The
// timer re-validates the row when it fires, so an intervening delete or a
// pushed-out expiry makes it a no-op. Timers do not survive restarts; the
// periodic sweep covers anything lost.
func (s *Service) scheduleReap(code string, d time.Duration) {
	time.AfterFunc(d, func() { s.ReapExpired(code) })
}

// ReapExpired deletes the link if, and only if, it is currently expired.
func (s *Service) ReapExpired(code string) {
	ctx := context.Background()

	var link models.Link
	err := s.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return // already removed
	}
	if err != nil {
		s.log.Warn().Err(err).Str("short_code", code).Msg("deferred expiry lookup failed")
		return
	}
	if !link.IsExpired(time.Now().UTC()) {
		return // expiry was pushed out
	}

	if err := s.cache.Del(ctx, cache.LinkKey(code)); err != nil {
		s.log.Warn().Err(err).Str("short_code", code).Msg("cache evict failed")
	}
	if err := s.db.WithContext(ctx).Delete(&models.Link{}, link.ID).Error; err != nil {
		s.log.Warn().Err(err).Str("short_code", code).Msg("deferred expiry delete failed")
		return
	}
	s.log.Info().Str("short_code", code).Msg("expired link reaped")
}

// validateURL accepts absolute http(s) URLs only.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

package links

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/trimly/trimly/pkg/trimly/cache"
	"github.com/trimly/trimly/pkg/trimly/models"
	"github.com/trimly/trimly/pkg/trimly/tasks"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	// A second pooled connection would see a separate empty :memory: database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)
	return db
}

func setupService(t *testing.T) (*Service, *cache.Memory, *tasks.Runner, *gorm.DB) {
	db := setupTestDB(t)
	mem := cache.NewMemory()
	runner := tasks.NewRunner(2, 64, zerolog.Nop())
	t.Cleanup(runner.Close)
	svc := NewService(db, mem, runner, zerolog.Nop())
	return svc, mem, runner, db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) models.User {
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func TestCreateRoundTrip(t *testing.T) {
	svc, mem, _, _ := setupService(t)
	ctx := context.Background()

	link, err := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com/very/long/url"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(link.ShortCode) != 6 {
		t.Errorf("Expected 6-char generated code, got %q", link.ShortCode)
	}
	if mem.Len() != 1 {
		t.Errorf("Expected cache write-through, cache has %d entries", mem.Len())
	}

	dest, err := svc.Resolve(ctx, link.ShortCode)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dest != "https://example.com/very/long/url" {
		t.Errorf("Expected round-trip URL, got %s", dest)
	}
}

func TestCreateCustomAlias(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	link, err := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com", CustomAlias: "myalias"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if link.ShortCode != "myalias" {
		t.Errorf("Expected short code 'myalias', got %s", link.ShortCode)
	}

	// Collision on a custom alias is an error, never an overwrite or a retry
	_, err = svc.Create(ctx, CreateParams{OriginalURL: "https://other.com", CustomAlias: "myalias"})
	if !errors.Is(err, ErrAliasTaken) {
		t.Errorf("Expected ErrAliasTaken, got %v", err)
	}

	dest, _ := svc.Resolve(ctx, "myalias")
	if dest != "https://example.com" {
		t.Errorf("Expected original URL preserved after collision, got %s", dest)
	}
}

func TestCreateInvalidAlias(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	for _, alias := range []string{"has space", "semi;colon", "cleanup", "search"} {
		_, err := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com", CustomAlias: alias})
		if !errors.Is(err, ErrInvalidAlias) {
			t.Errorf("Expected ErrInvalidAlias for %q, got %v", alias, err)
		}
	}
}

func TestCreateInvalidURL(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	for _, raw := range []string{"notaurl", "ftp://example.com", "/relative/path", "http://"} {
		_, err := svc.Create(ctx, CreateParams{OriginalURL: raw})
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Expected ErrInvalidURL for %q, got %v", raw, err)
		}
	}
}

func TestResolveNotFound(t *testing.T) {
	svc, _, _, _ := setupService(t)

	_, err := svc.Resolve(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestResolveExpiredAtCreation(t *testing.T) {
	svc, mem, _, _ := setupService(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	link, err := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com", ExpiresAt: &past})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// An expired row must never reach the cache, or it would be served 2xx
	if mem.Len() != 0 {
		t.Errorf("Expected no cache entry for expired link, cache has %d", mem.Len())
	}

	_, err = svc.Resolve(ctx, link.ShortCode)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("Expected ErrExpired, got %v", err)
	}
}

func TestResolveColdMissRepopulatesCache(t *testing.T) {
	svc, mem, _, db := setupService(t)
	ctx := context.Background()

	// Insert directly so the cache stays cold
	db.Create(&models.Link{ShortCode: "coldkey", OriginalURL: "https://example.com/cold"})

	dest, err := svc.Resolve(ctx, "coldkey")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dest != "https://example.com/cold" {
		t.Errorf("Expected cold URL, got %s", dest)
	}

	// Cold path is synchronous: stats and cache are updated before return
	if mem.Len() != 1 {
		t.Errorf("Expected cache repopulated, cache has %d entries", mem.Len())
	}
	var link models.Link
	db.Where("short_code = ?", "coldkey").First(&link)
	if link.ClickCount != 1 {
		t.Errorf("Expected click count 1, got %d", link.ClickCount)
	}
	if link.LastUsedAt == nil {
		t.Error("Expected last_used_at to be set")
	}
}

func TestResolveTrustsWarmCacheOverExpiry(t *testing.T) {
	svc, _, _, db := setupService(t)
	ctx := context.Background()

	link, err := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Expire the row behind the cache's back
	past := time.Now().UTC().Add(-time.Hour)
	db.Model(&models.Link{}).Where("short_code = ?", link.ShortCode).Update("expires_at", past)

	// Warm hits are not expiry-checked: staleness is bounded by the sweep
	dest, err := svc.Resolve(ctx, link.ShortCode)
	if err != nil {
		t.Fatalf("Expected warm hit to be served, got %v", err)
	}
	if dest != "https://example.com" {
		t.Errorf("Expected cached URL, got %s", dest)
	}

	// The sweep corrects it: entry evicted, row deleted
	count, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 link swept, got %d", count)
	}
	if _, err := svc.Resolve(ctx, link.ShortCode); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after sweep, got %v", err)
	}
}

func TestUpdateRefreshesWarmCache(t *testing.T) {
	svc, _, _, db := setupService(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner")

	link, err := svc.Create(ctx, CreateParams{OriginalURL: "https://old.example.com", OwnerID: &owner.ID})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := svc.Update(ctx, link.ShortCode, "https://new.example.com", owner.ID)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.OriginalURL != "https://new.example.com" {
		t.Errorf("Expected updated URL, got %s", updated.OriginalURL)
	}

	// The cache was warm before the update; it must serve the new URL
	dest, err := svc.Resolve(ctx, link.ShortCode)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dest != "https://new.example.com" {
		t.Errorf("Expected new URL from warm cache, got %s", dest)
	}
}

func TestUpdateOwnership(t *testing.T) {
	svc, _, _, db := setupService(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner")
	other := createTestUser(t, db, "other")

	link, _ := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com", OwnerID: &owner.ID})

	if _, err := svc.Update(ctx, link.ShortCode, "https://new.example.com", other.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for non-owner, got %v", err)
	}
	if _, err := svc.Update(ctx, "missing", "https://new.example.com", owner.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// Anonymous links have no owner: nobody may mutate them
	anon, _ := svc.Create(ctx, CreateParams{OriginalURL: "https://anon.example.com"})
	if _, err := svc.Update(ctx, anon.ShortCode, "https://new.example.com", owner.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for anonymous link, got %v", err)
	}
}

func TestDeleteThenResolve(t *testing.T) {
	svc, mem, _, db := setupService(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner")

	link, _ := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com", OwnerID: &owner.ID})

	if err := svc.Delete(ctx, link.ShortCode, owner.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mem.Len() != 0 {
		t.Errorf("Expected cache evicted on delete, cache has %d", mem.Len())
	}
	if _, err := svc.Resolve(ctx, link.ShortCode); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestCleanupExpiredIdempotent(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	svc.Create(ctx, CreateParams{OriginalURL: "https://a.example.com", ExpiresAt: &past})
	svc.Create(ctx, CreateParams{OriginalURL: "https://b.example.com", ExpiresAt: &past})
	live, _ := svc.Create(ctx, CreateParams{OriginalURL: "https://c.example.com", ExpiresAt: &future})

	count, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 links removed, got %d", count)
	}

	// Second run is a no-op, not an error
	count, err = svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("Second CleanupExpired failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 links removed on second run, got %d", count)
	}

	if _, err := svc.Resolve(ctx, live.ShortCode); err != nil {
		t.Errorf("Expected live link to survive sweep, got %v", err)
	}
}

func TestScheduledReap(t *testing.T) {
	svc, mem, _, db := setupService(t)
	ctx := context.Background()

	soon := time.Now().UTC().Add(50 * time.Millisecond)
	link, err := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com", ExpiresAt: &soon})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Wait for the one-shot timer to fire
	time.Sleep(300 * time.Millisecond)

	var count int64
	db.Model(&models.Link{}).Where("short_code = ?", link.ShortCode).Count(&count)
	if count != 0 {
		t.Error("Expected row deleted by deferred reap")
	}
	if mem.Len() != 0 {
		t.Errorf("Expected cache entry evicted by deferred reap, cache has %d", mem.Len())
	}
}

func TestReapRevalidates(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	// Missing row: no-op
	svc.ReapExpired("gone")

	// Expiry pushed out after scheduling: no-op
	future := time.Now().UTC().Add(time.Hour)
	link, _ := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com", ExpiresAt: &future})
	svc.ReapExpired(link.ShortCode)

	if _, err := svc.Resolve(ctx, link.ShortCode); err != nil {
		t.Errorf("Expected link to survive premature reap, got %v", err)
	}
}

func TestClickCountStrict(t *testing.T) {
	svc, _, runner, db := setupService(t)
	ctx := context.Background()

	link, _ := svc.Create(ctx, CreateParams{OriginalURL: "https://example.com"})

	// Concurrent warm hits: each resolve enqueues one async bump, and the
	// single-column atomic increment must not lose any of them
	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Resolve(ctx, link.ShortCode); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Draining the runner makes every bump durable before the assert
	runner.Close()

	var got models.Link
	db.Where("short_code = ?", link.ShortCode).First(&got)
	if got.ClickCount != n {
		t.Errorf("Expected click count %d, got %d", n, got.ClickCount)
	}
	if got.LastUsedAt == nil {
		t.Error("Expected last_used_at to be set")
	}
}

func TestUpdateDoesNotDropClicks(t *testing.T) {
	svc, _, runner, db := setupService(t)
	ctx := context.Background()

	user := createTestUser(t, db, "owner")
	link, err := svc.Create(ctx, CreateParams{
		OriginalURL: "https://example.com",
		OwnerID:     &user.ID,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Redirects racing destination updates: the update writes only the
	// original_url column, so bumps committed between its read and its
	// write must survive. Kept below the runner queue size so no bump
	// can be shed.
	const n = 60
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Resolve(ctx, link.ShortCode)
		}()
	}
	for i := 0; i < 10; i++ {
		if _, err := svc.Update(ctx, link.ShortCode, "https://example.com/moved", user.ID); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	wg.Wait()
	runner.Close()

	var got models.Link
	db.Where("short_code = ?", link.ShortCode).First(&got)
	if got.ClickCount != n {
		t.Errorf("Expected click count %d after concurrent updates, got %d", n, got.ClickCount)
	}
	if got.OriginalURL != "https://example.com/moved" {
		t.Errorf("Expected updated URL, got %s", got.OriginalURL)
	}
}

func TestSearchBySubstring(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	svc.Create(ctx, CreateParams{OriginalURL: "https://golang.example.com/docs"})
	svc.Create(ctx, CreateParams{OriginalURL: "https://python.example.com/docs"})

	found, err := svc.Search(ctx, "golang")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(found))
	}
	if found[0].OriginalURL != "https://golang.example.com/docs" {
		t.Errorf("Expected golang URL, got %s", found[0].OriginalURL)
	}
}

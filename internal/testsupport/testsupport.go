package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gemnar/internal"
	"gemnar/internal/config"
	"gemnar/internal/heatmaps"
	"gemnar/internal/projects"
	"gemnar/internal/settings"
	"gemnar/internal/tracking"
	"github.com/karloscodes/cartridge/cache"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with gemnar's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all gemnar models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&projects.Project{},
		&tracking.Session{},
		&tracking.PageView{},
		&tracking.Event{},
		&tracking.Recording{},
		&heatmaps.Heatmap{},
		&settings.Setting{},
	}
}

// SetupTestDB creates a test database with all gemnar models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same
// database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set GEMNAR_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// SetupTestDBManagerWithProject creates a test database manager with a test project
func SetupTestDBManagerWithProject(t *testing.T) (*TestDBManager, *slog.Logger, projects.Project) {
	dbManager, logger := SetupTestDBManager(t)
	project := CreateTestProject(t, dbManager.GetConnection())
	return dbManager, logger, project
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CreateTestProject creates an active test project with a generated tracking code
func CreateTestProject(t *testing.T, db *gorm.DB) projects.Project {
	t.Helper()

	project := projects.Project{
		BrandName:            "Acme Test",
		WebsiteURL:           "https://example.com",
		IsActive:             true,
		RecordMouseMovements: true,
		RecordClicks:         true,
		RecordScrolls:        true,
		SampleRate:           1.0,
	}
	require.NoError(t, projects.CreateProject(db, &project))
	return project
}

// CreateTestSessionWithPageView ingests a page view through the full
// pipeline and returns the created rows.
func CreateTestSessionWithPageView(t *testing.T, dbManager cartridge.DBManager, logger *slog.Logger, trackingCode, sessionID, path string) (*tracking.PageView, *tracking.Session) {
	t.Helper()

	pageView, session, err := tracking.IngestPageView(dbManager, logger, &tracking.PageViewInput{
		TrackingCode: trackingCode,
		SessionID:    sessionID,
		IPAddress:    "203.0.113.10",
		UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0 Safari/537.36",
		URL:          "https://example.com" + path,
		Title:        "Test Page",
	})
	require.NoError(t, err)
	require.NotNil(t, pageView)
	return pageView, session
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	// Enable SecFetchSite validation in tests to match production behavior.
	// Beacon routes must opt out themselves; requests without the header
	// are blocked everywhere else.
	cfg.EnableSecFetchSite = true
	cfg.SecFetchSiteAllowedValues = []string{"same-site", "same-origin"}

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

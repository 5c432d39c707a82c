package watcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/modelrelay/modelrelay/internal/db"
	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/settings"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watcher_test.db")
	conn, errOpen := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestWatcherPicksUpSettingChange(t *testing.T) {
	conn := openTestDB(t)
	store := settings.NewStore(conn)
	if errRefresh := store.Refresh(); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}
	if mode := store.Current().PriorityMode; mode != settings.PriorityModeProvider {
		t.Fatalf("initial mode = %q", mode)
	}

	w := New(store, 10*time.Millisecond)
	w.Start(context.Background())
	defer w.Stop()

	errUpdate := conn.Model(&models.Setting{}).
		Where("key = ?", settings.PriorityModeKey).
		Update("value", []byte(`"global_key"`)).Error
	if errUpdate != nil {
		t.Fatalf("update setting: %v", errUpdate)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Current().PriorityMode == settings.PriorityModeGlobalKey {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("watcher did not pick up the priority mode change")
}

func TestWatcherStartStopIdempotent(t *testing.T) {
	conn := openTestDB(t)
	store := settings.NewStore(conn)

	w := New(store, time.Millisecond)
	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx) // second Start is a no-op
	w.Stop()
	w.Stop() // second Stop is a no-op
}

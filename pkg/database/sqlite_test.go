package database

import (
	"path/filepath"
	"testing"

	"github.com/Alwanly/dify-indexing-watch/internal/models"
)

func TestNewSQLiteDB_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "watches.db")

	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("NewSQLiteDB() error = %v", err)
	}
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if !db.Migrator().HasTable(&models.Watch{}) {
		t.Error("expected watches table after migration")
	}

	conn, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close error = %v", err)
	}
}

func TestNewSQLiteDB_InMemory(t *testing.T) {
	db, err := NewSQLiteDB("")
	if err != nil {
		t.Fatalf("NewSQLiteDB() error = %v", err)
	}
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	w := models.Watch{ID: "w1", DatasetID: "ds", Batch: "b", Status: models.WatchPending, MaxAttempts: 7, BaseDelayMs: 1000}
	if err := db.Create(&w).Error; err != nil {
		t.Fatalf("create error = %v", err)
	}
	var got models.Watch
	if err := db.First(&got, "id = ?", "w1").Error; err != nil {
		t.Fatalf("read back error = %v", err)
	}
	if got.Status != models.WatchPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

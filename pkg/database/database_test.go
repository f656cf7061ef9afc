package database

import (
	"bytes"
	"errors"
	"exam_portal_backend/internal/model"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "log.db")), &gorm.Config{
		Logger: newGormLogger(&buf, "warn"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&model.User{}); err != nil {
		t.Fatal(err)
	}
	buf.Reset()

	var user model.User
	if err := db.Where("username = ?", "nobody").First(&user).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("First: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("record not found was logged: %s", buf.String())
	}

	if err := db.Exec("SELECT * FROM missing_table").Error; err == nil {
		t.Fatal("expected error for missing table")
	}
	if buf.Len() == 0 {
		t.Error("real query errors should still be logged")
	}
}

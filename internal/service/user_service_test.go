package service

import (
	"bytes"
	"context"
	"errors"
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"
)

func newUserService(t *testing.T) (*UserService, *gorm.DB, string) {
	t.Helper()
	db := newTestDB(t)
	dir := t.TempDir()
	storage := NewStorageService(&config.Config{
		Storage: config.StorageConfig{Type: util.StorageLocal, LocalPath: dir, MaxImageBytes: 1 << 20},
	})
	return NewUserService(repository.NewUserRepository(db), storage), db, dir
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCreateUserAndList(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	admin, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "proctor_1", Email: "t1@example.com", Password: "Secret123", FullName: "Proctor One", Role: "admin",
	})
	if err != nil || admin.Role != model.Admin {
		t.Fatalf("create admin: %+v %v", admin, err)
	}
	student, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "student_1", Email: "s1@example.com", Password: "Secret123", FullName: "Student One",
	})
	if err != nil || student.Role != model.Student {
		t.Fatalf("create student: %+v %v", student, err)
	}
	if _, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "x_user", Email: "x@example.com", Password: "Secret123", FullName: "X", Role: "proctor",
	}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("invalid role: got %v", err)
	}

	users, page, err := svc.ListUsers(ctx, "", "admin", 1)
	if err != nil || len(users) != 1 || users[0].ID != admin.ID || page.TotalItems != 1 {
		t.Errorf("role filter: %+v %+v %v", users, page, err)
	}
	users, _, err = svc.ListUsers(ctx, "student", "", 1)
	if err != nil || len(users) != 1 || users[0].ID != student.ID {
		t.Errorf("search: %+v %v", users, err)
	}
}

func TestDeactivate(t *testing.T) {
	svc, db, _ := newUserService(t)
	ctx := context.Background()
	admin := seedUser(t, db, "root", model.Admin)
	student := seedUser(t, db, "alice", model.Student)

	if err := svc.Deactivate(ctx, admin.ID, admin.ID); !errors.Is(err, util.ErrValidation) {
		t.Errorf("self deactivation: got %v", err)
	}
	if err := svc.Deactivate(ctx, admin.ID, student.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	var stored model.User
	db.First(&stored, student.ID)
	if stored.IsActive {
		t.Error("user still active")
	}
	if err := svc.Deactivate(ctx, admin.ID, 9999); !errors.Is(err, util.ErrUserNotFound) {
		t.Errorf("missing user: got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, db, dir := newUserService(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice", model.Student)
	seedUser(t, db, "bob", model.Student)

	data := pngBytes(t)
	user, err := svc.UpdateProfile(ctx, alice.ID, UpdateProfileRequest{FullName: "Alice Cooper"},
		&ProfileImage{Reader: bytes.NewReader(data), Size: int64(len(data))})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if user.FullName != "Alice Cooper" || !strings.HasPrefix(user.ProfileImage, "/uploads/profiles/") {
		t.Errorf("unexpected user: %+v", user)
	}
	stored := filepath.Join(dir, strings.TrimPrefix(user.ProfileImage, "/uploads/"))
	if _, err := os.Stat(stored); err != nil {
		t.Errorf("image not written: %v", err)
	}

	if _, err := svc.UpdateProfile(ctx, alice.ID, UpdateProfileRequest{Email: "bob@example.com"}, nil); !errors.Is(err, util.ErrEmailRegistered) {
		t.Errorf("taken email: got %v", err)
	}

	text := []byte("just some text, not an image")
	if _, err := svc.UpdateProfile(ctx, alice.ID, UpdateProfileRequest{},
		&ProfileImage{Reader: bytes.NewReader(text), Size: int64(len(text))}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("non-image upload: got %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, alice.ID, UpdateProfileRequest{},
		&ProfileImage{Reader: bytes.NewReader(data), Size: 2 << 20}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("oversized upload: got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "alice", Email: "alice@example.com", Password: "Secret123", FullName: "Alice",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "Better456"}); !errors.Is(err, ErrCurrentPasswordMismatch) {
		t.Errorf("wrong current password: got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "Secret123", NewPassword: "short"}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("weak password: got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "Secret123", NewPassword: "Better456"}); err != nil {
		t.Fatalf("change: %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "Better456", NewPassword: "Secret123"}); err != nil {
		t.Errorf("new password not applied: %v", err)
	}
}

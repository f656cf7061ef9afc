package service

import (
	"context"
	"errors"
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			Timeout:        30 * time.Minute,
			RememberDays:   30,
			RememberSecret: "test-remember-secret-0123456789abcdef",
		},
		Login: config.LoginConfig{MaxAttempts: 5, Window: 15 * time.Minute},
	}
}

func newAuthService(t *testing.T) (*AuthService, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	db := newTestDB(t)
	mr, rdb := newTestRedis(t)
	svc := NewAuthService(
		repository.NewUserRepository(db),
		repository.NewSessionRepository(rdb),
		repository.NewLoginAttemptRepository(rdb),
		testConfig(),
	)
	return svc, db, mr
}

var testClient = ClientInfo{IP: "10.0.0.1", UserAgent: "test-agent"}

func registerAlice(t *testing.T, svc *AuthService) *model.User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterRequest{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "Secret123",
		FullName: "Alice Smith",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return user
}

func TestRegister(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	user := registerAlice(t, svc)
	if user.Role != model.Student || !user.IsActive || user.Email != "alice@example.com" {
		t.Errorf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "Secret123" {
		t.Error("password stored in plain text")
	}

	tests := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"duplicate username", RegisterRequest{Username: "alice", Email: "a2@example.com", Password: "Secret123", FullName: "Al"}, util.ErrUsernameTaken},
		{"duplicate email", RegisterRequest{Username: "alice2", Email: "alice@example.com", Password: "Secret123", FullName: "Al"}, util.ErrEmailRegistered},
		{"short username", RegisterRequest{Username: "al", Email: "x@example.com", Password: "Secret123", FullName: "Al"}, util.ErrValidation},
		{"weak password", RegisterRequest{Username: "carol", Email: "c@example.com", Password: "password", FullName: "Carol"}, util.ErrValidation},
		{"bad email", RegisterRequest{Username: "carol", Email: "not-an-email", Password: "Secret123", FullName: "Carol"}, util.ErrValidation},
		{"mismatched confirm", RegisterRequest{Username: "carol", Email: "c@example.com", Password: "Secret123", ConfirmPassword: "Secret124", FullName: "Carol"}, util.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLogin_ByUsernameOrEmail(t *testing.T) {
	svc, _, mr := newAuthService(t)
	ctx := context.Background()
	registerAlice(t, svc)

	res, err := svc.Login(ctx, "alice", "Secret123", false, testClient)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.RememberToken != "" {
		t.Error("remember token issued without remember flag")
	}
	if !mr.Exists("session:" + res.Session.Token) {
		t.Error("session not stored in redis")
	}
	if ttl := mr.TTL("session:" + res.Session.Token); ttl != 30*time.Minute {
		t.Errorf("session ttl = %v", ttl)
	}

	res, err = svc.Login(ctx, "alice@example.com", "Secret123", true, testClient)
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if res.RememberToken == "" {
		t.Error("remember token missing")
	}
}

func TestLogin_RateLimitedPerIP(t *testing.T) {
	svc, _, mr := newAuthService(t)
	ctx := context.Background()
	registerAlice(t, svc)

	for i := 0; i < 5; i++ {
		if _, err := svc.Login(ctx, "alice", "wrong", false, testClient); !errors.Is(err, util.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v", i+1, err)
		}
	}
	if _, err := svc.Login(ctx, "alice", "Secret123", false, testClient); !errors.Is(err, util.ErrTooManyAttempts) {
		t.Fatalf("sixth attempt: got %v", err)
	}

	// 其他 IP 不受影响
	other := ClientInfo{IP: "10.0.0.2", UserAgent: "test-agent"}
	if _, err := svc.Login(ctx, "alice", "Secret123", false, other); err != nil {
		t.Fatalf("other ip: %v", err)
	}

	mr.FastForward(16 * time.Minute)
	if _, err := svc.Login(ctx, "alice", "Secret123", false, testClient); err != nil {
		t.Fatalf("after window: %v", err)
	}
	if mr.Exists("login_attempts:" + testClient.IP) {
		t.Error("counter should be cleared after a successful login")
	}
}

func TestLogin_InactiveUser(t *testing.T) {
	svc, db, _ := newAuthService(t)
	user := registerAlice(t, svc)
	db.Model(&model.User{}).Where("id = ?", user.ID).Update("is_active", false)

	if _, err := svc.Login(context.Background(), "alice", "Secret123", false, testClient); !errors.Is(err, util.ErrInvalidCredentials) {
		t.Errorf("got %v", err)
	}
}

func TestValidateSession_DeactivatedUser(t *testing.T) {
	svc, db, mr := newAuthService(t)
	ctx := context.Background()
	user := registerAlice(t, svc)

	res, err := svc.Login(ctx, "alice", "Secret123", false, testClient)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateSession(ctx, res.Session.Token, testClient); err != nil {
		t.Fatalf("active user: %v", err)
	}

	admin := NewUserService(repository.NewUserRepository(db), nil)
	if err := admin.Deactivate(ctx, 0, user.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateSession(ctx, res.Session.Token, testClient); !errors.Is(err, util.ErrSessionInvalid) {
		t.Fatalf("deactivated user session: %v", err)
	}
	if mr.Exists("session:" + res.Session.Token) {
		t.Error("session of deactivated user was not removed")
	}
}

func TestValidateSession(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()
	registerAlice(t, svc)

	res, err := svc.Login(ctx, "alice", "Secret123", false, testClient)
	if err != nil {
		t.Fatal(err)
	}
	token := res.Session.Token

	sess, err := svc.ValidateSession(ctx, token, testClient)
	if err != nil || sess.Username != "alice" || sess.Role != model.Student {
		t.Fatalf("validate: %+v %v", sess, err)
	}

	// 滑动过期：持续活动不会过期
	base := time.Now()
	svc.Now = func() time.Time { return base.Add(20 * time.Minute) }
	if _, err := svc.ValidateSession(ctx, token, testClient); err != nil {
		t.Fatalf("within timeout: %v", err)
	}
	svc.Now = func() time.Time { return base.Add(45 * time.Minute) }
	if _, err := svc.ValidateSession(ctx, token, testClient); err != nil {
		t.Fatalf("last seen refreshed: %v", err)
	}

	if _, err := svc.ValidateSession(ctx, token, ClientInfo{IP: testClient.IP, UserAgent: "other"}); !errors.Is(err, util.ErrSessionInvalid) {
		t.Errorf("user agent change: got %v", err)
	}
	// 校验失败后会话被销毁
	if _, err := svc.ValidateSession(ctx, token, testClient); !errors.Is(err, util.ErrSessionInvalid) {
		t.Errorf("destroyed session: got %v", err)
	}
}

func TestValidateSession_InactivityTimeout(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()
	registerAlice(t, svc)

	res, err := svc.Login(ctx, "alice", "Secret123", false, testClient)
	if err != nil {
		t.Fatal(err)
	}
	svc.Now = func() time.Time { return res.Session.LastSeen.Add(31 * time.Minute) }
	if _, err := svc.ValidateSession(ctx, res.Session.Token, testClient); !errors.Is(err, util.ErrSessionInvalid) {
		t.Errorf("got %v", err)
	}
}

func TestRestoreFromRemember(t *testing.T) {
	svc, db, _ := newAuthService(t)
	ctx := context.Background()
	user := registerAlice(t, svc)

	res, err := svc.Login(ctx, "alice", "Secret123", true, testClient)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Logout(ctx, res.Session.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateSession(ctx, res.Session.Token, testClient); !errors.Is(err, util.ErrSessionInvalid) {
		t.Errorf("logged out session: got %v", err)
	}

	sess, err := svc.RestoreFromRemember(ctx, res.RememberToken, testClient)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if sess.UserID != user.ID || sess.Token == res.Session.Token {
		t.Errorf("unexpected restored session: %+v", sess)
	}

	if _, err := svc.RestoreFromRemember(ctx, "garbage", testClient); !errors.Is(err, util.ErrSessionInvalid) {
		t.Errorf("bad token: got %v", err)
	}

	db.Model(&model.User{}).Where("id = ?", user.ID).Update("is_active", false)
	if _, err := svc.RestoreFromRemember(ctx, res.RememberToken, testClient); !errors.Is(err, util.ErrSessionInvalid) {
		t.Errorf("deactivated user: got %v", err)
	}
}

func TestUsernameAvailable(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()
	registerAlice(t, svc)

	for name, want := range map[string]bool{"alice": false, "bob_1": true, "b!": false} {
		got, err := svc.UsernameAvailable(ctx, name)
		if err != nil || got != want {
			t.Errorf("%q: got %v %v, want %v", name, got, err, want)
		}
	}
}

package service

import (
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/pkg/database"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(&config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "exam.db"),
		LogLevel: "error",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func seedUser(t *testing.T, db *gorm.DB, username string, role model.UserRole) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		FullName:     "Test " + username,
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// quizExam 两道选择题（各 5 分）、一道判断题（正确答案 false，2 分）、一道简答题（10 分）
func quizExam(t *testing.T, db *gorm.DB) *model.Exam {
	t.Helper()
	exam := &model.Exam{
		Title:           "Geography",
		StartTime:       testNow.Add(-time.Hour),
		EndTime:         testNow.Add(2 * time.Hour),
		DurationMinutes: 30,
		TotalMarks:      22,
		PassingMarks:    5,
		Status:          model.ExamActive,
		Questions: []model.Question{
			{QuestionText: "Capital of France?", QuestionType: model.MultipleChoice, Marks: 5, Order: 1, Options: []model.Option{
				{OptionText: "Paris", IsCorrect: true, Order: 1},
				{OptionText: "Lyon", Order: 2},
			}},
			{QuestionText: "Capital of Italy?", QuestionType: model.MultipleChoice, Marks: 5, Order: 2, Options: []model.Option{
				{OptionText: "Milan", Order: 1},
				{OptionText: "Rome", IsCorrect: true, Order: 2},
			}},
			{QuestionText: "The Alps are in Africa.", QuestionType: model.TrueFalse, Marks: 2, Order: 3, Options: []model.Option{
				{OptionText: "True", Order: 1},
				{OptionText: "False", IsCorrect: true, Order: 2},
			}},
			{QuestionText: "Name the capital of France.", QuestionType: model.ShortAnswer, Marks: 10, Order: 4, ReferenceAnswer: "Paris"},
		},
	}
	if err := repository.NewExamRepository(db).Create(exam); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return exam
}

func newAttemptService(db *gorm.DB) *AttemptService {
	svc := NewAttemptService(
		repository.NewExamRepository(db),
		repository.NewAttemptRepository(db),
		NewGrader(PlaceholderStrategy{}),
		DeadlinePolicy{},
	)
	svc.Now = func() time.Time { return testNow }
	return svc
}

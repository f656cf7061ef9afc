package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
)

type resultFixture struct {
	db      *gorm.DB
	results *ResultService
	exam    *model.Exam
	alice   *model.User
	bob     *model.User
	admin   *model.User
	passed  uint // alice 通过
	failed  uint // bob 未通过
}

func newResultFixture(t *testing.T) *resultFixture {
	t.Helper()
	db := newTestDB(t)
	f := &resultFixture{
		db:    db,
		exam:  quizExam(t, db),
		alice: seedUser(t, db, "alice", model.Student),
		bob:   seedUser(t, db, "bob", model.Student),
		admin: seedUser(t, db, "root", model.Admin),
	}
	f.results = NewResultService(
		repository.NewResultRepository(db),
		repository.NewExamRepository(db),
		repository.NewAttemptRepository(db),
		repository.NewUserRepository(db),
	)
	f.results.Now = func() time.Time { return testNow.Add(time.Hour) }

	attempts := newAttemptService(db)
	ctx := context.Background()
	q := f.exam.Questions

	take := func(user *model.User, raw map[string]interface{}) uint {
		res, err := attempts.Start(ctx, user.ID, f.exam.ID)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := attempts.SaveAnswers(ctx, user.ID, res.AttemptID, raw); err != nil {
			t.Fatalf("save: %v", err)
		}
		if _, err := attempts.Submit(ctx, user.ID, res.AttemptID); err != nil {
			t.Fatalf("submit: %v", err)
		}
		return res.AttemptID
	}
	f.passed = take(f.alice, map[string]interface{}{
		key(q[0].ID): float64(q[0].Options[0].ID),
		key(q[2].ID): "false",
	})
	f.failed = take(f.bob, map[string]interface{}{
		key(q[1].ID): float64(q[1].Options[0].ID),
	})
	return f
}

func sessionFor(u *model.User) *model.Session {
	return &model.Session{UserID: u.ID, Username: u.Username, Role: u.Role}
}

func TestListResults_StudentsSeeOwn(t *testing.T) {
	f := newResultFixture(t)
	ctx := context.Background()

	rows, page, err := f.results.ListResults(ctx, sessionFor(f.alice), ResultQuery{Page: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].AttemptID != f.passed || !rows[0].Passed || page.TotalItems != 1 {
		t.Errorf("student results: %+v %+v", rows, page)
	}
	if rows[0].PassingPercentage != model.Percentage(5, 22) {
		t.Errorf("passing percentage = %v", rows[0].PassingPercentage)
	}

	all, _, err := f.results.ListResults(ctx, sessionFor(f.admin), ResultQuery{})
	if err != nil || len(all) != 2 {
		t.Fatalf("admin results: %d %v", len(all), err)
	}

	failed, _, err := f.results.ListResults(ctx, sessionFor(f.admin), ResultQuery{Result: "failed", Days: 7})
	if err != nil || len(failed) != 1 || failed[0].AttemptID != f.failed {
		t.Errorf("failed filter: %+v %v", failed, err)
	}
}

func TestGetResult_Ownership(t *testing.T) {
	f := newResultFixture(t)
	ctx := context.Background()

	if _, err := f.results.GetResult(ctx, sessionFor(f.bob), f.passed); !errors.Is(err, util.ErrAccessDenied) {
		t.Errorf("foreign result: got %v", err)
	}
	if _, err := f.results.GetResult(ctx, sessionFor(f.admin), f.passed); err != nil {
		t.Errorf("admin: %v", err)
	}
	if _, err := f.results.GetResult(ctx, sessionFor(f.alice), 9999); !errors.Is(err, util.ErrInvalidAttempt) {
		t.Errorf("missing: got %v", err)
	}
}

func TestQuestionBreakdown(t *testing.T) {
	f := newResultFixture(t)
	ctx := context.Background()

	items, err := f.results.QuestionBreakdown(ctx, sessionFor(f.alice), f.passed)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 4 {
		t.Fatalf("got %d items", len(items))
	}
	if !items[0].IsCorrect || items[0].MarksObtained != 5 || items[0].YourAnswer != "Paris" {
		t.Errorf("q1: %+v", items[0])
	}
	if items[1].Answered || items[1].CorrectAnswer != "Rome" {
		t.Errorf("q2: %+v", items[1])
	}
	if items[2].YourAnswer != "False" || items[2].MarksObtained != 2 {
		t.Errorf("q3: %+v", items[2])
	}
	if items[3].CorrectAnswer != "Paris" {
		t.Errorf("q4: %+v", items[3])
	}

	if _, err := f.results.QuestionBreakdown(ctx, sessionFor(f.bob), f.passed); !errors.Is(err, util.ErrAccessDenied) {
		t.Errorf("foreign breakdown: got %v", err)
	}

	// 进行中的记录不提供明细
	other := quizExam(t, f.db)
	res, err := newAttemptService(f.db).Start(ctx, f.alice.ID, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.results.QuestionBreakdown(ctx, sessionFor(f.alice), res.AttemptID); !errors.Is(err, util.ErrInvalidAttempt) {
		t.Errorf("in-progress breakdown: got %v", err)
	}
}

func TestDashboards(t *testing.T) {
	f := newResultFixture(t)
	ctx := context.Background()

	upcoming := &model.Exam{
		Title:           "Next week",
		StartTime:       testNow.Add(7 * 24 * time.Hour),
		EndTime:         testNow.Add(8 * 24 * time.Hour),
		DurationMinutes: 10,
		TotalMarks:      1,
		Status:          model.ExamScheduled,
	}
	if err := repository.NewExamRepository(f.db).Create(upcoming); err != nil {
		t.Fatal(err)
	}

	d, err := f.results.StudentDashboard(ctx, f.alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.CompletedExams) != 1 || d.CompletedExams[0].ID != f.exam.ID {
		t.Errorf("completed: %+v", d.CompletedExams)
	}
	if len(d.UpcomingExams) != 1 || d.UpcomingExams[0].ID != upcoming.ID {
		t.Errorf("upcoming: %+v", d.UpcomingExams)
	}
	if len(d.ActiveExams) != 0 || len(d.RecentResults) != 1 {
		t.Errorf("active %d recent %d", len(d.ActiveExams), len(d.RecentResults))
	}

	admin, err := f.results.AdminDashboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if admin.TotalUsers != 3 || admin.ActiveExams != 1 || admin.TotalAttempts != 2 || admin.CompletionRate != 100 {
		t.Errorf("admin dashboard: %+v", admin)
	}

	stats, err := f.results.ProfileStats(ctx, f.alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalExams != 1 || stats.PassedExams != 1 || len(stats.History) != 1 {
		t.Errorf("profile stats: %+v", stats)
	}
}

func TestReportGenerate(t *testing.T) {
	f := newResultFixture(t)
	reports := NewReportService(
		repository.NewResultRepository(f.db),
		repository.NewUserRepository(f.db),
		repository.NewExamRepository(f.db),
	)
	ctx := context.Background()

	for typ, wantRows := range map[string]int{"results": 3, "users": 4, "exams": 2} {
		data, err := reports.Generate(ctx, typ)
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		records, err := csv.NewReader(strings.NewReader(data)).ReadAll()
		if err != nil {
			t.Fatalf("%s: invalid csv: %v", typ, err)
		}
		if len(records) != wantRows {
			t.Errorf("%s: %d rows, want %d", typ, len(records), wantRows)
		}
	}

	if _, err := reports.Generate(ctx, "grades"); !errors.Is(err, util.ErrValidation) {
		t.Errorf("unknown type: got %v", err)
	}
}

func TestCertificate(t *testing.T) {
	f := newResultFixture(t)
	cfg := &config.Config{
		App:     config.AppConfig{Name: "Exam Portal", BaseURL: "http://localhost:8080"},
		Session: config.SessionConfig{RememberSecret: "certificate-secret"},
	}
	certs := NewCertificateService(f.results, cfg)
	ctx := context.Background()

	data, name, err := certs.Generate(ctx, sessionFor(f.alice), f.passed)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) || !strings.HasSuffix(name, ".pdf") {
		t.Errorf("not a pdf: %q %s", data[:8], name)
	}

	if _, _, err := certs.Generate(ctx, sessionFor(f.bob), f.failed); !errors.Is(err, util.ErrNotPassed) {
		t.Errorf("failed attempt: got %v", err)
	}
	if _, _, err := certs.Generate(ctx, sessionFor(f.bob), f.passed); !errors.Is(err, util.ErrAccessDenied) {
		t.Errorf("foreign certificate: got %v", err)
	}

	code := certs.VerificationCode(f.passed, f.alice.ID)
	v, err := certs.Verify(ctx, f.passed, code)
	if err != nil || !v.Valid || v.FullName != f.alice.FullName {
		t.Errorf("verify: %+v %v", v, err)
	}
	if v, _ := certs.Verify(ctx, f.passed, "0000000000000000"); v.Valid {
		t.Error("wrong code accepted")
	}
	if v, _ := certs.Verify(ctx, 9999, code); v.Valid {
		t.Error("missing result accepted")
	}
}

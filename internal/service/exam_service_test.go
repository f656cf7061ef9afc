package service

import (
	"context"
	"errors"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validExamInput() ExamInput {
	return ExamInput{
		Title:           "  Algebra  ",
		StartTime:       testNow,
		EndTime:         testNow.Add(3 * time.Hour),
		DurationMinutes: 60,
		PassingMarks:    6,
		Status:          "active",
		Questions: []QuestionInput{
			{QuestionText: "2+2?", QuestionType: "multiple_choice", Marks: 4, Options: []OptionInput{
				{OptionText: "3"}, {OptionText: "4", IsCorrect: true},
			}},
			{QuestionText: "1 is prime.", QuestionType: "true_false", Marks: 2, ReferenceAnswer: "false"},
			{QuestionText: "Define a group.", QuestionType: "short_answer", Marks: 6},
		},
	}
}

func TestCreateExam(t *testing.T) {
	db := newTestDB(t)
	svc := NewExamService(repository.NewExamRepository(db))
	ctx := context.Background()

	exam, err := svc.CreateExam(ctx, 1, validExamInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if exam.Title != "Algebra" || exam.TotalMarks != 12 || exam.Status != model.ExamActive {
		t.Errorf("unexpected exam: %+v", exam)
	}

	loaded, err := svc.GetExam(ctx, exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Questions) != 3 {
		t.Fatalf("got %d questions", len(loaded.Questions))
	}
	for i, q := range loaded.Questions {
		if q.Order != i+1 {
			t.Errorf("question %d order %d", i, q.Order)
		}
	}
	tf := loaded.Questions[1]
	if len(tf.Options) != 2 || tf.CorrectOption() == nil || tf.CorrectOption().OptionText != "False" {
		t.Errorf("true/false options not generated from reference answer: %+v", tf.Options)
	}
}

func TestCreateExam_Validation(t *testing.T) {
	db := newTestDB(t)
	svc := NewExamService(repository.NewExamRepository(db))

	tests := []struct {
		name   string
		mutate func(in *ExamInput)
	}{
		{"missing title", func(in *ExamInput) { in.Title = " " }},
		{"end before start", func(in *ExamInput) { in.EndTime = in.StartTime.Add(-time.Minute) }},
		{"zero duration", func(in *ExamInput) { in.DurationMinutes = 0 }},
		{"passing above total", func(in *ExamInput) { in.PassingMarks = 50 }},
		{"bad status", func(in *ExamInput) { in.Status = "open" }},
		{"bad question type", func(in *ExamInput) { in.Questions[0].QuestionType = "essay" }},
		{"two correct options", func(in *ExamInput) { in.Questions[0].Options[0].IsCorrect = true }},
		{"duplicate order", func(in *ExamInput) { in.Questions[0].Order = 2; in.Questions[1].Order = 2 }},
		{"short answer with options", func(in *ExamInput) {
			in.Questions[2].Options = []OptionInput{{OptionText: "x", IsCorrect: true}}
		}},
		{"true false without reference", func(in *ExamInput) { in.Questions[1].ReferenceAnswer = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validExamInput()
			tt.mutate(&in)
			if _, err := svc.CreateExam(context.Background(), 1, in); !errors.Is(err, util.ErrValidation) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestUpdateExam_QuestionsLockedAfterAttempts(t *testing.T) {
	db := newTestDB(t)
	svc := NewExamService(repository.NewExamRepository(db))
	ctx := context.Background()

	exam, err := svc.CreateExam(ctx, 1, validExamInput())
	if err != nil {
		t.Fatal(err)
	}

	in := validExamInput()
	in.Title = "Algebra II"
	in.Questions = in.Questions[:2]
	in.PassingMarks = 3
	updated, err := svc.UpdateExam(ctx, exam.ID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Algebra II" || len(updated.Questions) != 2 || updated.TotalMarks != 6 {
		t.Errorf("unexpected update: %+v", updated)
	}

	student := seedUser(t, db, "alice", model.Student)
	attempts := newAttemptService(db)
	if _, err := attempts.Start(ctx, student.ID, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.UpdateExam(ctx, exam.ID, in); !errors.Is(err, util.ErrExamHasAttempts) {
		t.Errorf("question change after attempts: got %v", err)
	}

	// 不带题目的更新仍然允许
	meta := validExamInput()
	meta.Questions = nil
	meta.Title = "Algebra III"
	meta.PassingMarks = 3
	updated, err = svc.UpdateExam(ctx, exam.ID, meta)
	if err != nil {
		t.Fatalf("metadata update: %v", err)
	}
	if updated.Title != "Algebra III" || len(updated.Questions) != 2 || updated.TotalMarks != 6 {
		t.Errorf("metadata update changed questions: %+v", updated)
	}

	if _, err := svc.UpdateExam(ctx, 999, meta); !errors.Is(err, util.ErrExamNotFound) {
		t.Errorf("missing exam: got %v", err)
	}
}

func TestArchiveAndListExams(t *testing.T) {
	db := newTestDB(t)
	svc := NewExamService(repository.NewExamRepository(db))
	ctx := context.Background()

	a, err := svc.CreateExam(ctx, 1, validExamInput())
	if err != nil {
		t.Fatal(err)
	}
	in := validExamInput()
	in.Title = "Geometry"
	if _, err := svc.CreateExam(ctx, 1, in); err != nil {
		t.Fatal(err)
	}

	if err := svc.ArchiveExam(ctx, a.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := svc.ArchiveExam(ctx, 999); !errors.Is(err, util.ErrExamNotFound) {
		t.Errorf("archive missing: got %v", err)
	}

	rows, page, err := svc.ListExams(ctx, "archived", "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != a.ID || rows[0].QuestionCount != 3 || page.TotalItems != 1 {
		t.Errorf("archived list: %+v %+v", rows, page)
	}

	rows, _, err = svc.ListExams(ctx, "", "geo", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Title != "Geometry" {
		t.Errorf("search: %+v", rows)
	}
}

func TestImportFile(t *testing.T) {
	db := newTestDB(t)
	svc := NewExamService(repository.NewExamRepository(db))

	seed := `exams:
  - title: Seeded exam
    start_time: 2026-03-01T09:00:00Z
    end_time: 2026-03-01T12:00:00Z
    duration_minutes: 45
    passing_marks: 3
    status: active
    questions:
      - question_text: Sky is blue.
        question_type: true_false
        marks: 3
        reference_answer: "true"
      - question_text: Pick one
        question_type: multiple_choice
        marks: 2
        options:
          - option_text: A
            is_correct: true
          - option_text: B
`
	path := filepath.Join(t.TempDir(), "exams.yaml")
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := svc.ImportFile(context.Background(), path, 0)
	if err != nil || n != 1 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	rows, _, err := svc.ListExams(context.Background(), "active", "Seeded", 1)
	if err != nil || len(rows) != 1 || rows[0].TotalMarks != 5 || rows[0].QuestionCount != 2 {
		t.Errorf("imported exam: %+v %v", rows, err)
	}
}

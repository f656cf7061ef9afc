package service

import (
	"context"
	"errors"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

type ResultService struct {
	ResultRepo  *repository.ResultRepository
	ExamRepo    *repository.ExamRepository
	AttemptRepo *repository.AttemptRepository
	UserRepo    *repository.UserRepository
	Now         func() time.Time
}

func NewResultService(resultRepo *repository.ResultRepository, examRepo *repository.ExamRepository, attemptRepo *repository.AttemptRepository, userRepo *repository.UserRepository) *ResultService {
	return &ResultService{
		ResultRepo:  resultRepo,
		ExamRepo:    examRepo,
		AttemptRepo: attemptRepo,
		UserRepo:    userRepo,
		Now:         time.Now,
	}
}

// ResultView 成绩行加上派生字段
type ResultView struct {
	repository.ResultRow
	Passed            bool    `json:"passed"`
	PassingPercentage float64 `json:"passing_percentage"`
}

func toView(row repository.ResultRow) ResultView {
	return ResultView{
		ResultRow:         row,
		Passed:            row.Passed(),
		PassingPercentage: model.Percentage(row.PassingMarks, row.TotalMarks),
	}
}

func toViews(rows []repository.ResultRow) []ResultView {
	out := make([]ResultView, len(rows))
	for i, r := range rows {
		out[i] = toView(r)
	}
	return out
}

type ResultQuery struct {
	ExamID uint
	Days   int
	Result string
	Page   int
}

// ListResults 学生只能看到自己的成绩，管理员可看全部
func (s *ResultService) ListResults(ctx context.Context, sess *model.Session, q ResultQuery) ([]ResultView, util.Pagination, error) {
	filter := repository.ResultFilter{ExamID: q.ExamID}
	if sess.Role != model.Admin {
		filter.UserID = sess.UserID
	}
	if q.Days > 0 {
		since := s.Now().AddDate(0, 0, -q.Days)
		filter.Since = &since
	}
	if q.Result == "passed" || q.Result == "failed" {
		filter.Result = q.Result
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	rows, total, err := s.ResultRepo.WithContext(ctx).List(filter, page, util.ItemsPerPage)
	if err != nil {
		return nil, util.Pagination{}, err
	}
	return toViews(rows), util.NewPagination(page, util.ItemsPerPage, total), nil
}

func (s *ResultService) GetResult(ctx context.Context, sess *model.Session, attemptID uint) (*ResultView, error) {
	row, err := s.ResultRepo.WithContext(ctx).FindByAttempt(attemptID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrInvalidAttempt
	}
	if err != nil {
		return nil, err
	}
	if sess.Role != model.Admin && row.UserID != sess.UserID {
		return nil, util.ErrAccessDenied
	}
	v := toView(*row)
	return &v, nil
}

type BreakdownItem struct {
	QuestionID    uint               `json:"question_id"`
	QuestionText  string             `json:"question_text"`
	QuestionType  model.QuestionType `json:"question_type"`
	Order         int                `json:"order"`
	Marks         int                `json:"marks"`
	MarksObtained int                `json:"marks_obtained"`
	IsCorrect     bool               `json:"is_correct"`
	Answered      bool               `json:"answered"`
	YourAnswer    string             `json:"your_answer"`
	CorrectAnswer string             `json:"correct_answer"`
}

// QuestionBreakdown 仅对已完成的考试开放，包含正确答案
func (s *ResultService) QuestionBreakdown(ctx context.Context, sess *model.Session, attemptID uint) ([]BreakdownItem, error) {
	attempts := s.AttemptRepo.WithContext(ctx)
	attempt, err := attempts.FindByID(attemptID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrInvalidAttempt
	}
	if err != nil {
		return nil, err
	}
	if sess.Role != model.Admin && attempt.UserID != sess.UserID {
		return nil, util.ErrAccessDenied
	}
	if attempt.Status != model.AttemptCompleted {
		return nil, util.ErrInvalidAttempt
	}

	exam, err := s.ExamRepo.WithContext(ctx).FindWithQuestions(attempt.ExamID)
	if err != nil {
		return nil, err
	}
	answers, err := attempts.ListAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[uint]*model.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	items := make([]BreakdownItem, 0, len(exam.Questions))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		item := BreakdownItem{
			QuestionID:    q.ID,
			QuestionText:  q.QuestionText,
			QuestionType:  q.QuestionType,
			Order:         q.Order,
			Marks:         q.Marks,
			CorrectAnswer: correctAnswerText(q),
		}
		if a, ok := byQuestion[q.ID]; ok {
			item.Answered = true
			item.MarksObtained = a.MarksObtained
			item.IsCorrect = a.IsCorrect
			item.YourAnswer = answerText(q, a)
		}
		items = append(items, item)
	}
	return items, nil
}

func correctAnswerText(q *model.Question) string {
	switch q.QuestionType {
	case model.MultipleChoice, model.TrueFalse:
		if opt := q.CorrectOption(); opt != nil {
			return opt.OptionText
		}
	case model.ShortAnswer:
		return q.ReferenceAnswer
	}
	return ""
}

func answerText(q *model.Question, a *model.Answer) string {
	switch q.QuestionType {
	case model.MultipleChoice:
		if a.SelectedOptionID != nil {
			if opt := q.OptionByID(*a.SelectedOptionID); opt != nil {
				return opt.OptionText
			}
		}
	case model.TrueFalse:
		if a.BoolAnswer != nil {
			for i := range q.Options {
				if v, ok := OptionTruth(q, &q.Options[i]); ok && v == *a.BoolAnswer {
					return q.Options[i].OptionText
				}
			}
			if *a.BoolAnswer {
				return "True"
			}
			return "False"
		}
	case model.ShortAnswer:
		if a.AnswerText != nil {
			return *a.AnswerText
		}
	}
	return ""
}

type ProfileStats struct {
	repository.UserStats
	History []ResultView `json:"history"`
}

func (s *ResultService) ProfileStats(ctx context.Context, userID uint) (*ProfileStats, error) {
	results := s.ResultRepo.WithContext(ctx)
	stats, err := results.UserStats(userID)
	if err != nil {
		return nil, err
	}
	recent, err := results.Recent(userID, util.ItemsPerPage)
	if err != nil {
		return nil, err
	}
	return &ProfileStats{UserStats: *stats, History: toViews(recent)}, nil
}

type DashboardExam struct {
	ID              uint                `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	DurationMinutes int                 `json:"duration_minutes"`
	TotalMarks      int                 `json:"total_marks"`
	PassingMarks    int                 `json:"passing_marks"`
	AttemptID       uint                `json:"attempt_id,omitempty"`
	AttemptStatus   model.AttemptStatus `json:"attempt_status,omitempty"`
}

type StudentDashboard struct {
	UpcomingExams  []DashboardExam `json:"upcoming_exams"`
	ActiveExams    []DashboardExam `json:"active_exams"`
	CompletedExams []DashboardExam `json:"completed_exams"`
	RecentResults  []ResultView    `json:"recent_results"`
}

// StudentDashboard 按考生视角把考试分为即将开始、进行中、已完成
func (s *ResultService) StudentDashboard(ctx context.Context, userID uint) (*StudentDashboard, error) {
	exams, err := s.ExamRepo.WithContext(ctx).ListVisible()
	if err != nil {
		return nil, err
	}
	attempts, err := s.AttemptRepo.WithContext(ctx).StatusByExam(userID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	d := &StudentDashboard{
		UpcomingExams:  []DashboardExam{},
		ActiveExams:    []DashboardExam{},
		CompletedExams: []DashboardExam{},
	}
	for i := range exams {
		e := &exams[i]
		de := DashboardExam{
			ID:              e.ID,
			Title:           e.Title,
			Description:     e.Description,
			StartTime:       e.StartTime,
			EndTime:         e.EndTime,
			DurationMinutes: e.DurationMinutes,
			TotalMarks:      e.TotalMarks,
			PassingMarks:    e.PassingMarks,
		}
		a, has := attempts[e.ID]
		if has {
			de.AttemptID = a.ID
			de.AttemptStatus = a.Status
		}

		switch {
		case has && a.Status == model.AttemptCompleted:
			d.CompletedExams = append(d.CompletedExams, de)
		case e.IsOpenAt(now):
			d.ActiveExams = append(d.ActiveExams, de)
		case e.Status != model.ExamCompleted && e.StartTime.After(now):
			d.UpcomingExams = append(d.UpcomingExams, de)
		}
	}

	recent, err := s.ResultRepo.WithContext(ctx).Recent(userID, util.ItemsPerPage)
	if err != nil {
		return nil, err
	}
	d.RecentResults = toViews(recent)
	return d, nil
}

type AdminDashboard struct {
	TotalUsers     int64        `json:"total_users"`
	ActiveExams    int64        `json:"active_exams"`
	TotalAttempts  int64        `json:"total_attempts"`
	CompletionRate float64      `json:"completion_rate"`
	RecentActivity []ResultView `json:"recent_activity"`
}

func (s *ResultService) AdminDashboard(ctx context.Context) (*AdminDashboard, error) {
	users, err := s.UserRepo.WithContext(ctx).CountActive()
	if err != nil {
		return nil, err
	}
	active, err := s.ExamRepo.WithContext(ctx).CountByStatus(model.ExamActive)
	if err != nil {
		return nil, err
	}
	results := s.ResultRepo.WithContext(ctx)
	counts, err := results.AttemptCounts()
	if err != nil {
		return nil, err
	}
	recent, err := results.Recent(0, util.ItemsPerPage)
	if err != nil {
		return nil, err
	}

	return &AdminDashboard{
		TotalUsers:     users,
		ActiveExams:    active,
		TotalAttempts:  counts.Total,
		CompletionRate: model.Percentage(int(counts.Completed), int(counts.Total)),
		RecentActivity: toViews(recent),
	}, nil
}

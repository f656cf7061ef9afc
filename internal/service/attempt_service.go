package service

import (
	"context"
	"errors"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"exam_portal_backend/pkg/logger"
	"exam_portal_backend/pkg/monitoring"
	"exam_portal_backend/pkg/tracing"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DeadlinePolicy 服务端截止时间校验，默认关闭，接受超时提交
type DeadlinePolicy struct {
	Enforce bool
	Grace   time.Duration
}

type AttemptService struct {
	ExamRepo    *repository.ExamRepository
	AttemptRepo *repository.AttemptRepository
	Grader      *Grader
	Now         func() time.Time

	mu     sync.RWMutex
	policy DeadlinePolicy
}

func NewAttemptService(examRepo *repository.ExamRepository, attemptRepo *repository.AttemptRepository, grader *Grader, policy DeadlinePolicy) *AttemptService {
	return &AttemptService{
		ExamRepo:    examRepo,
		AttemptRepo: attemptRepo,
		Grader:      grader,
		Now:         time.Now,
		policy:      policy,
	}
}

// SetDeadlinePolicy 配置热加载时调用
func (s *AttemptService) SetDeadlinePolicy(p DeadlinePolicy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

func (s *AttemptService) deadlinePolicy() DeadlinePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

func (s *AttemptService) pastDeadline(attempt *model.Attempt, exam *model.Exam, now time.Time) bool {
	p := s.deadlinePolicy()
	if !p.Enforce {
		return false
	}
	return now.After(attempt.Deadline(exam.DurationMinutes).Add(p.Grace))
}

type ExamSummary struct {
	ID              uint   `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	TotalMarks      int    `json:"total_marks"`
	PassingMarks    int    `json:"passing_marks"`
}

type StudentOption struct {
	ID         uint   `json:"id"`
	OptionText string `json:"option_text"`
	Order      int    `json:"order"`
}

// StudentQuestion 面向考生的题目，不含正确答案标记和参考答案
type StudentQuestion struct {
	ID           uint               `json:"id"`
	QuestionText string             `json:"question_text"`
	QuestionType model.QuestionType `json:"question_type"`
	Marks        int                `json:"marks"`
	Order        int                `json:"order"`
	Options      []StudentOption    `json:"options"`
}

type StartResult struct {
	Exam             ExamSummary            `json:"exam"`
	AttemptID        uint                   `json:"attempt_id"`
	StartTime        time.Time              `json:"start_time"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	Resumed          bool                   `json:"resumed"`
	Questions        []StudentQuestion      `json:"questions"`
	SavedAnswers     map[string]interface{} `json:"saved_answers"`
}

type SubmitResult struct {
	AttemptID    uint    `json:"attempt_id"`
	Score        int     `json:"score"`
	Percentage   float64 `json:"percentage"`
	TotalMarks   int     `json:"total_marks"`
	PassingMarks int     `json:"passing_marks"`
	Passed       bool    `json:"passed"`
	Answered     int     `json:"answered"`
	Unanswered   int     `json:"unanswered"`
}

// classify 已知业务错误原样返回，其余视为存储错误
func classify(op string, err error) error {
	for _, known := range []error{
		util.ErrNotAvailable,
		util.ErrAlreadyCompleted,
		util.ErrInvalidAttempt,
		util.ErrDeadlineExceeded,
		util.ErrPersistence,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", util.ErrPersistence, op, err)
}

func toStudentQuestions(questions []model.Question) []StudentQuestion {
	out := make([]StudentQuestion, len(questions))
	for i, q := range questions {
		sq := StudentQuestion{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Marks:        q.Marks,
			Order:        q.Order,
			Options:      []StudentOption{},
		}
		if q.QuestionType.HasOptions() {
			for _, o := range q.Options {
				sq.Options = append(sq.Options, StudentOption{ID: o.ID, OptionText: o.OptionText, Order: o.Order})
			}
		}
		out[i] = sq
	}
	return out
}

// Start 校验考试是否开放，存在进行中的记录则续答（不重置开始时间），已完成则拒绝
func (s *AttemptService) Start(ctx context.Context, userID, examID uint) (*StartResult, error) {
	ctx, span := tracing.Start(ctx, "attempt.start",
		attribute.Int64("user_id", int64(userID)),
		attribute.Int64("exam_id", int64(examID)))
	defer span.End()

	exam, err := s.ExamRepo.WithContext(ctx).FindWithQuestions(examID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotAvailable
	}
	if err != nil {
		return nil, classify("load exam", err)
	}

	now := s.Now()
	if !exam.IsOpenAt(now) {
		return nil, util.ErrNotAvailable
	}

	attempts := s.AttemptRepo.WithContext(ctx)
	attempt, resumed, err := s.findOrCreate(attempts, userID, examID, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	saved := map[string]interface{}{}
	if resumed {
		answers, err := attempts.ListAnswers(attempt.ID)
		if err != nil {
			return nil, classify("load answers", err)
		}
		byID := make(map[uint]*model.Question, len(exam.Questions))
		for i := range exam.Questions {
			byID[exam.Questions[i].ID] = &exam.Questions[i]
		}
		for i := range answers {
			if q, ok := byID[answers[i].QuestionID]; ok {
				if v := AnswerValue(q, &answers[i]); v != nil {
					saved[strconv.FormatUint(uint64(q.ID), 10)] = v
				}
			}
		}
	}

	monitoring.ObserveStart(resumed)
	logger.Log.Info("Exam attempt started",
		zap.Uint("attempt_id", attempt.ID),
		zap.Uint("user_id", userID),
		zap.Uint("exam_id", examID),
		zap.Bool("resumed", resumed),
	)

	return &StartResult{
		Exam: ExamSummary{
			ID:              exam.ID,
			Title:           exam.Title,
			Description:     exam.Description,
			DurationMinutes: exam.DurationMinutes,
			TotalMarks:      exam.TotalMarks,
			PassingMarks:    exam.PassingMarks,
		},
		AttemptID:        attempt.ID,
		StartTime:        attempt.StartTime,
		RemainingSeconds: attempt.RemainingSeconds(exam.DurationMinutes, now),
		Resumed:          resumed,
		Questions:        toStudentQuestions(exam.Questions),
		SavedAnswers:     saved,
	}, nil
}

func (s *AttemptService) findOrCreate(attempts *repository.AttemptRepository, userID, examID uint, now time.Time) (*model.Attempt, bool, error) {
	existing, err := attempts.FindActive(userID, examID)
	if err == nil {
		return resumeOrReject(existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, classify("find attempt", err)
	}

	attempt := &model.Attempt{
		UserID:    userID,
		ExamID:    examID,
		ActiveKey: model.ActiveKeyFor(userID, examID),
		Status:    model.AttemptInProgress,
		StartTime: now,
	}
	if createErr := attempts.Create(attempt); createErr != nil {
		// 并发开始同一考试时唯一索引冲突，读取胜出的那条记录
		winner, err := attempts.FindActive(userID, examID)
		if err != nil {
			return nil, false, classify("create attempt", createErr)
		}
		return resumeOrReject(winner)
	}
	return attempt, false, nil
}

func resumeOrReject(a *model.Attempt) (*model.Attempt, bool, error) {
	switch a.Status {
	case model.AttemptInProgress:
		return a, true, nil
	case model.AttemptCompleted:
		return nil, false, util.ErrAlreadyCompleted
	}
	return nil, false, util.ErrInvalidAttempt
}

// lockOwned 加锁读取并校验归属与状态，必须在事务内调用
func lockOwned(repo *repository.AttemptRepository, userID, attemptID uint) (*model.Attempt, error) {
	attempt, err := repo.FindForUpdate(attemptID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrInvalidAttempt
	}
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID || attempt.Status != model.AttemptInProgress {
		return nil, util.ErrInvalidAttempt
	}
	return attempt, nil
}

// SaveAnswers 在一个事务内删除旧答案并写入新答案，重复保存相同内容结果不变
func (s *AttemptService) SaveAnswers(ctx context.Context, userID, attemptID uint, raw map[string]interface{}) (int, error) {
	ctx, span := tracing.Start(ctx, "attempt.save_answers", attribute.Int64("attempt_id", int64(attemptID)))
	defer span.End()

	var saved int
	err := s.AttemptRepo.WithContext(ctx).Transaction(func(tx *gorm.DB, repo *repository.AttemptRepository) error {
		attempt, err := lockOwned(repo, userID, attemptID)
		if err != nil {
			return err
		}

		exam, err := s.ExamRepo.WithTx(tx).FindWithQuestions(attempt.ExamID)
		if err != nil {
			return err
		}
		if s.pastDeadline(attempt, exam, s.Now()) {
			return util.ErrDeadlineExceeded
		}

		answers := BuildAnswers(exam.Questions, raw)
		if err := repo.ReplaceAnswers(attempt.ID, answers); err != nil {
			return err
		}
		saved = len(answers)
		return nil
	})
	if err != nil {
		err = classify("save answers", err)
		span.RecordError(err)
		if errors.Is(err, util.ErrPersistence) {
			span.SetStatus(codes.Error, "save failed")
			logger.Log.Error("Failed to save answers", zap.Uint("attempt_id", attemptID), zap.Error(err))
		}
		return 0, err
	}

	monitoring.AnswerSaves.Inc()
	logger.Log.Debug("Answers saved", zap.Uint("attempt_id", attemptID), zap.Int("count", saved))
	return saved, nil
}

// Submit 评分并结束考试；逐题评分与状态更新在同一事务内提交，已完成的记录再次提交返回 ErrInvalidAttempt
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID uint) (*SubmitResult, error) {
	ctx, span := tracing.Start(ctx, "attempt.submit", attribute.Int64("attempt_id", int64(attemptID)))
	defer span.End()

	began := time.Now()
	var result *SubmitResult
	err := s.AttemptRepo.WithContext(ctx).Transaction(func(tx *gorm.DB, repo *repository.AttemptRepository) error {
		attempt, err := lockOwned(repo, userID, attemptID)
		if err != nil {
			return err
		}

		exam, err := s.ExamRepo.WithTx(tx).FindWithQuestions(attempt.ExamID)
		if err != nil {
			return err
		}
		now := s.Now()
		if s.pastDeadline(attempt, exam, now) {
			return util.ErrDeadlineExceeded
		}

		answers, err := repo.ListAnswers(attempt.ID)
		if err != nil {
			return err
		}

		_, gradeSpan := tracing.Start(ctx, "attempt.grade", attribute.Int("questions", len(exam.Questions)))
		summary := s.Grader.GradeAttempt(exam.Questions, answers)
		gradeSpan.End()

		for _, gq := range summary.Questions {
			if gq.AnswerID == 0 {
				continue
			}
			if err := repo.UpdateAnswerGrade(gq.AnswerID, gq.IsCorrect, gq.Marks); err != nil {
				return err
			}
		}

		attempt.EndTime = &now
		attempt.TotalScore = summary.TotalScore
		attempt.Percentage = model.Percentage(summary.TotalScore, exam.TotalMarks)
		attempt.AnsweredCount = summary.Answered
		ok, err := repo.Finalize(attempt)
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrInvalidAttempt
		}

		result = &SubmitResult{
			AttemptID:    attempt.ID,
			Score:        attempt.TotalScore,
			Percentage:   attempt.Percentage,
			TotalMarks:   exam.TotalMarks,
			PassingMarks: exam.PassingMarks,
			Passed:       attempt.TotalScore >= exam.PassingMarks,
			Answered:     summary.Answered,
			Unanswered:   summary.Unanswered,
		}
		return nil
	})
	if err != nil {
		err = classify("submit attempt", err)
		span.RecordError(err)
		if errors.Is(err, util.ErrPersistence) {
			span.SetStatus(codes.Error, "submit failed")
			logger.Log.Error("Failed to submit exam", zap.Uint("attempt_id", attemptID), zap.Error(err))
		}
		return nil, err
	}

	monitoring.ObserveSubmit(result.Passed, time.Since(began))
	logger.Log.Info("Exam attempt submitted",
		zap.Uint("attempt_id", attemptID),
		zap.Uint("user_id", userID),
		zap.Int("score", result.Score),
		zap.Float64("percentage", result.Percentage),
		zap.Bool("passed", result.Passed),
	)
	return result, nil
}

// Abandon 管理员放弃进行中的记录，释放 (考生, 考试) 名额
func (s *AttemptService) Abandon(ctx context.Context, attemptID uint) error {
	ok, err := s.AttemptRepo.WithContext(ctx).Abandon(attemptID, s.Now())
	if err != nil {
		return classify("abandon attempt", err)
	}
	if !ok {
		return util.ErrInvalidAttempt
	}
	logger.Log.Info("Exam attempt abandoned", zap.Uint("attempt_id", attemptID))
	return nil
}

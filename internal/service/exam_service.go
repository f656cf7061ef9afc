package service

import (
	"context"
	"errors"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"exam_portal_backend/pkg/logger"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type ExamService struct {
	ExamRepo *repository.ExamRepository
}

func NewExamService(examRepo *repository.ExamRepository) *ExamService {
	return &ExamService{ExamRepo: examRepo}
}

type OptionInput struct {
	OptionText string `json:"option_text" yaml:"option_text"`
	IsCorrect  bool   `json:"is_correct" yaml:"is_correct"`
	Order      int    `json:"order" yaml:"order"`
}

type QuestionInput struct {
	QuestionText    string        `json:"question_text" yaml:"question_text"`
	QuestionType    string        `json:"question_type" yaml:"question_type"`
	Marks           int           `json:"marks" yaml:"marks"`
	Order           int           `json:"order" yaml:"order"`
	ReferenceAnswer string        `json:"reference_answer" yaml:"reference_answer"`
	Options         []OptionInput `json:"options" yaml:"options"`
}

// ExamInput Questions 为 nil 时更新操作保留原有题目
type ExamInput struct {
	Title           string          `json:"title" yaml:"title"`
	Description     string          `json:"description" yaml:"description"`
	StartTime       time.Time       `json:"start_time" yaml:"start_time"`
	EndTime         time.Time       `json:"end_time" yaml:"end_time"`
	DurationMinutes int             `json:"duration_minutes" yaml:"duration_minutes"`
	TotalMarks      int             `json:"total_marks" yaml:"total_marks"`
	PassingMarks    int             `json:"passing_marks" yaml:"passing_marks"`
	Status          string          `json:"status" yaml:"status"`
	Questions       []QuestionInput `json:"questions" yaml:"questions"`
}

func (in *ExamInput) toExam() (*model.Exam, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, util.Invalid("Exam title is required")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return nil, util.Invalid("Start time and end time are required")
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, util.Invalid("End time must be after start time")
	}
	if in.DurationMinutes <= 0 {
		return nil, util.Invalid("Duration must be greater than zero")
	}

	status := model.ExamStatus(in.Status)
	if in.Status == "" {
		status = model.ExamScheduled
	}
	if !status.Valid() {
		return nil, util.Invalid("Invalid exam status")
	}

	exam := &model.Exam{
		Title:           title,
		Description:     strings.TrimSpace(in.Description),
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		DurationMinutes: in.DurationMinutes,
		TotalMarks:      in.TotalMarks,
		PassingMarks:    in.PassingMarks,
		Status:          status,
	}

	if in.Questions != nil {
		questions, err := buildQuestions(in.Questions)
		if err != nil {
			return nil, err
		}
		exam.Questions = questions
		// 未填写总分时取题目分值之和
		if exam.TotalMarks == 0 {
			for _, q := range questions {
				exam.TotalMarks += q.Marks
			}
		}
	}

	if exam.TotalMarks <= 0 {
		return nil, util.Invalid("Total marks must be greater than zero")
	}
	if exam.PassingMarks < 0 || exam.PassingMarks > exam.TotalMarks {
		return nil, util.Invalid("Passing marks must be between 0 and total marks")
	}
	return exam, nil
}

func buildQuestions(inputs []QuestionInput) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(inputs))
	seenOrder := make(map[int]bool, len(inputs))

	for i, in := range inputs {
		n := i + 1
		qt := model.QuestionType(in.QuestionType)
		if !qt.Valid() {
			return nil, util.Invalid(fmt.Sprintf("Question %d: invalid question type", n))
		}
		text := strings.TrimSpace(in.QuestionText)
		if text == "" {
			return nil, util.Invalid(fmt.Sprintf("Question %d: question text is required", n))
		}
		if in.Marks <= 0 {
			return nil, util.Invalid(fmt.Sprintf("Question %d: marks must be greater than zero", n))
		}

		order := in.Order
		if order == 0 {
			order = n
		}
		if seenOrder[order] {
			return nil, util.Invalid(fmt.Sprintf("Question %d: duplicate order %d", n, order))
		}
		seenOrder[order] = true

		q := model.Question{
			QuestionText:    text,
			QuestionType:    qt,
			Marks:           in.Marks,
			Order:           order,
			ReferenceAnswer: strings.TrimSpace(in.ReferenceAnswer),
		}

		opts := in.Options
		if qt == model.TrueFalse && len(opts) == 0 {
			opts = trueFalseOptions(q.ReferenceAnswer)
		}

		if qt.HasOptions() {
			options, err := buildOptions(n, qt, opts)
			if err != nil {
				return nil, err
			}
			q.Options = options
		} else if len(opts) > 0 {
			return nil, util.Invalid(fmt.Sprintf("Question %d: short answer questions cannot have options", n))
		}

		questions = append(questions, q)
	}
	return questions, nil
}

// trueFalseOptions 判断题未给出选项时按参考答案生成 True/False 两个选项
func trueFalseOptions(reference string) []OptionInput {
	switch normalizeText(reference) {
	case "true":
		return []OptionInput{{OptionText: "True", IsCorrect: true, Order: 1}, {OptionText: "False", Order: 2}}
	case "false":
		return []OptionInput{{OptionText: "True", Order: 1}, {OptionText: "False", IsCorrect: true, Order: 2}}
	}
	return nil
}

func buildOptions(n int, qt model.QuestionType, inputs []OptionInput) ([]model.Option, error) {
	if qt == model.TrueFalse && len(inputs) != 2 {
		return nil, util.Invalid(fmt.Sprintf("Question %d: true/false questions need exactly two options", n))
	}
	if qt == model.MultipleChoice && len(inputs) < 2 {
		return nil, util.Invalid(fmt.Sprintf("Question %d: multiple choice questions need at least two options", n))
	}

	options := make([]model.Option, 0, len(inputs))
	correct := 0
	for i, in := range inputs {
		text := strings.TrimSpace(in.OptionText)
		if text == "" {
			return nil, util.Invalid(fmt.Sprintf("Question %d: option text is required", n))
		}
		order := in.Order
		if order == 0 {
			order = i + 1
		}
		if in.IsCorrect {
			correct++
		}
		options = append(options, model.Option{OptionText: text, IsCorrect: in.IsCorrect, Order: order})
	}
	if correct != 1 {
		return nil, util.Invalid(fmt.Sprintf("Question %d: exactly one option must be marked correct", n))
	}
	return options, nil
}

func (s *ExamService) CreateExam(ctx context.Context, createdBy uint, in ExamInput) (*model.Exam, error) {
	exam, err := in.toExam()
	if err != nil {
		return nil, err
	}
	exam.CreatedBy = createdBy

	if err := s.ExamRepo.WithContext(ctx).Create(exam); err != nil {
		return nil, err
	}
	logger.Log.Info("Exam created", zap.Uint("exam_id", exam.ID), zap.Int("questions", len(exam.Questions)))
	return exam, nil
}

// UpdateExam 已有作答记录的考试不允许修改题目
func (s *ExamService) UpdateExam(ctx context.Context, examID uint, in ExamInput) (*model.Exam, error) {
	exams := s.ExamRepo.WithContext(ctx)
	current, err := exams.FindByID(examID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}

	if in.Questions == nil && in.TotalMarks == 0 {
		in.TotalMarks = current.TotalMarks
	}
	exam, err := in.toExam()
	if err != nil {
		return nil, err
	}
	exam.ID = current.ID
	exam.CreatedBy = current.CreatedBy
	exam.CreatedAt = current.CreatedAt

	if in.Questions != nil {
		has, err := exams.HasAttempts(examID)
		if err != nil {
			return nil, err
		}
		if has {
			return nil, util.ErrExamHasAttempts
		}
	}

	if err := exams.Update(exam, exam.Questions); err != nil {
		return nil, err
	}
	logger.Log.Info("Exam updated", zap.Uint("exam_id", exam.ID))
	return exams.FindWithQuestions(examID)
}

// ArchiveExam 考试不做物理删除，归档后学生不可见
func (s *ExamService) ArchiveExam(ctx context.Context, examID uint) error {
	err := s.ExamRepo.WithContext(ctx).UpdateStatus(examID, model.ExamArchived)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrExamNotFound
	}
	return err
}

func (s *ExamService) GetExam(ctx context.Context, examID uint) (*model.Exam, error) {
	exam, err := s.ExamRepo.WithContext(ctx).FindWithQuestions(examID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrExamNotFound
	}
	return exam, err
}

func (s *ExamService) ListExams(ctx context.Context, status, search string, page int) ([]repository.ExamListRow, util.Pagination, error) {
	filter := repository.ExamFilter{Search: strings.TrimSpace(search)}
	if st := model.ExamStatus(status); st.Valid() {
		filter.Status = st
	}
	rows, total, err := s.ExamRepo.WithContext(ctx).List(filter, page, util.ItemsPerPage)
	if err != nil {
		return nil, util.Pagination{}, err
	}
	return rows, util.NewPagination(page, util.ItemsPerPage, total), nil
}

type examSeedFile struct {
	Exams []ExamInput `yaml:"exams"`
}

// ImportFile 从 YAML 文件批量导入考试，任一考试校验失败则中止
func (s *ExamService) ImportFile(ctx context.Context, path string, createdBy uint) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var seed examSeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	created := 0
	for i := range seed.Exams {
		if _, err := s.CreateExam(ctx, createdBy, seed.Exams[i]); err != nil {
			return created, fmt.Errorf("exam %d (%s): %w", i+1, seed.Exams[i].Title, err)
		}
		created++
	}
	return created, nil
}

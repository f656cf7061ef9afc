package repository

import (
	"context"
	"exam_portal_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) WithContext(ctx context.Context) *ExamRepository {
	return &ExamRepository{DB: r.DB.WithContext(ctx)}
}

func (r *ExamRepository) WithTx(tx *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: tx}
}

func (r *ExamRepository) FindByID(id uint) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.First(&exam, id).Error
	return &exam, err
}

// FindWithQuestions 题目与选项均按 display_order 排序
func (r *ExamRepository) FindWithQuestions(id uint) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC, id ASC")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC, id ASC")
		}).
		First(&exam, id).Error
	return &exam, err
}

// Create 试卷连同题目、选项一起写入
func (r *ExamRepository) Create(exam *model.Exam) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(exam).Error
	})
}

// Update 更新试卷字段；questions 非空时整体替换题目
func (r *ExamRepository) Update(exam *model.Exam, questions []model.Question) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Exam{}).Where("id = ?", exam.ID).Updates(map[string]interface{}{
			"title":            exam.Title,
			"description":      exam.Description,
			"start_time":       exam.StartTime,
			"end_time":         exam.EndTime,
			"duration_minutes": exam.DurationMinutes,
			"total_marks":      exam.TotalMarks,
			"passing_marks":    exam.PassingMarks,
			"status":           exam.Status,
			"updated_at":       time.Now(),
		}).Error; err != nil {
			return err
		}

		if questions == nil {
			return nil
		}

		var questionIDs []uint
		if err := tx.Model(&model.Question{}).Where("exam_id = ?", exam.ID).Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			if err := tx.Where("question_id IN ?", questionIDs).Delete(&model.Option{}).Error; err != nil {
				return err
			}
			if err := tx.Where("exam_id = ?", exam.ID).Delete(&model.Question{}).Error; err != nil {
				return err
			}
		}
		for i := range questions {
			questions[i].ID = 0
			questions[i].ExamID = exam.ID
		}
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return err
			}
		}
		exam.Questions = questions
		return nil
	})
}

func (r *ExamRepository) UpdateStatus(id uint, status model.ExamStatus) error {
	res := r.DB.Model(&model.Exam{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ExamRepository) HasAttempts(examID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.Attempt{}).Where("exam_id = ?", examID).Count(&count).Error
	return count > 0, err
}

type ExamListRow struct {
	model.Exam
	QuestionCount int64 `json:"question_count"`
	AttemptCount  int64 `json:"attempt_count"`
}

type ExamFilter struct {
	Status model.ExamStatus
	Search string
}

func (r *ExamRepository) List(filter ExamFilter, page, limit int) ([]ExamListRow, int64, error) {
	query := r.DB.Model(&model.Exam{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		query = query.Where("title LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var exams []model.Exam
	if err := query.Order("start_time DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&exams).Error; err != nil {
		return nil, 0, err
	}

	rows := make([]ExamListRow, len(exams))
	if len(exams) == 0 {
		return rows, total, nil
	}

	ids := make([]uint, len(exams))
	for i, e := range exams {
		ids[i] = e.ID
	}

	type countRow struct {
		ExamID uint
		Cnt    int64
	}
	var qCounts, aCounts []countRow
	if err := r.DB.Model(&model.Question{}).Select("exam_id, COUNT(*) AS cnt").
		Where("exam_id IN ?", ids).Group("exam_id").Scan(&qCounts).Error; err != nil {
		return nil, 0, err
	}
	if err := r.DB.Model(&model.Attempt{}).Select("exam_id, COUNT(*) AS cnt").
		Where("exam_id IN ?", ids).Group("exam_id").Scan(&aCounts).Error; err != nil {
		return nil, 0, err
	}
	qMap := make(map[uint]int64, len(qCounts))
	for _, c := range qCounts {
		qMap[c.ExamID] = c.Cnt
	}
	aMap := make(map[uint]int64, len(aCounts))
	for _, c := range aCounts {
		aMap[c.ExamID] = c.Cnt
	}

	for i, e := range exams {
		rows[i] = ExamListRow{Exam: e, QuestionCount: qMap[e.ID], AttemptCount: aMap[e.ID]}
	}
	return rows, total, nil
}

// ListVisible 学生可见的考试（未归档），按开始时间排序
func (r *ExamRepository) ListVisible() ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.Where("status IN ?", []model.ExamStatus{model.ExamScheduled, model.ExamActive, model.ExamCompleted}).
		Order("start_time ASC, id ASC").
		Find(&exams).Error
	return exams, err
}

func (r *ExamRepository) CountByStatus(status model.ExamStatus) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Exam{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (r *ExamRepository) All() ([]ExamListRow, error) {
	rows, _, err := r.List(ExamFilter{}, 1, 1<<30)
	return rows, err
}

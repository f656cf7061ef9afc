package repository

import (
	"context"
	"exam_portal_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ResultRepository struct {
	DB *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{DB: db}
}

func (r *ResultRepository) WithContext(ctx context.Context) *ResultRepository {
	return &ResultRepository{DB: r.DB.WithContext(ctx)}
}

// ResultRow 已完成考试的成绩行
type ResultRow struct {
	AttemptID       uint       `json:"id"`
	UserID          uint       `json:"user_id"`
	Username        string     `json:"username"`
	FullName        string     `json:"full_name"`
	ExamID          uint       `json:"exam_id"`
	ExamTitle       string     `json:"exam_title"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	TotalScore      int        `json:"total_score"`
	Percentage      float64    `json:"percentage"`
	TotalMarks      int        `json:"total_marks"`
	PassingMarks    int        `json:"passing_marks"`
	DurationMinutes int        `json:"duration_minutes"`
	AnsweredCount   int        `json:"answered_count"`
}

func (row *ResultRow) Passed() bool {
	return row.TotalScore >= row.PassingMarks
}

type ResultFilter struct {
	UserID uint // 0 表示全部
	ExamID uint
	Since  *time.Time
	Result string // passed | failed
}

func (r *ResultRepository) base() *gorm.DB {
	return r.DB.Table("exam_attempts AS a").
		Select(`a.id AS attempt_id, a.user_id, u.username, u.full_name, a.exam_id, e.title AS exam_title,
			a.start_time, a.end_time, a.total_score, a.percentage, e.total_marks, e.passing_marks,
			e.duration_minutes, a.answered_count`).
		Joins("JOIN users u ON u.id = a.user_id").
		Joins("JOIN exams e ON e.id = a.exam_id").
		Where("a.status = ?", model.AttemptCompleted)
}

func (r *ResultRepository) applyFilter(q *gorm.DB, f ResultFilter) *gorm.DB {
	if f.UserID != 0 {
		q = q.Where("a.user_id = ?", f.UserID)
	}
	if f.ExamID != 0 {
		q = q.Where("a.exam_id = ?", f.ExamID)
	}
	if f.Since != nil {
		q = q.Where("a.end_time >= ?", *f.Since)
	}
	switch f.Result {
	case "passed":
		q = q.Where("a.total_score >= e.passing_marks")
	case "failed":
		q = q.Where("a.total_score < e.passing_marks")
	}
	return q
}

func (r *ResultRepository) List(f ResultFilter, page, limit int) ([]ResultRow, int64, error) {
	var total int64
	countQ := r.applyFilter(r.DB.Table("exam_attempts AS a").
		Joins("JOIN exams e ON e.id = a.exam_id").
		Where("a.status = ?", model.AttemptCompleted), f)
	if err := countQ.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []ResultRow
	err := r.applyFilter(r.base(), f).
		Order("a.end_time DESC, a.id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Scan(&rows).Error
	return rows, total, err
}

// Recent 最近完成的成绩，userID 为 0 时不限用户
func (r *ResultRepository) Recent(userID uint, limit int) ([]ResultRow, error) {
	var rows []ResultRow
	err := r.applyFilter(r.base(), ResultFilter{UserID: userID}).
		Order("a.end_time DESC, a.id DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *ResultRepository) All() ([]ResultRow, error) {
	var rows []ResultRow
	err := r.base().Order("a.end_time DESC, a.id DESC").Scan(&rows).Error
	return rows, err
}

func (r *ResultRepository) FindByAttempt(attemptID uint) (*ResultRow, error) {
	var row ResultRow
	res := r.base().Where("a.id = ?", attemptID).Limit(1).Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

type UserStats struct {
	TotalExams   int64   `json:"total_exams"`
	AverageScore float64 `json:"average_score"`
	PassedExams  int64   `json:"passed_exams"`
	BestScore    float64 `json:"best_score"`
}

func (r *ResultRepository) UserStats(userID uint) (*UserStats, error) {
	var stats UserStats
	err := r.DB.Table("exam_attempts AS a").
		Select(`COUNT(*) AS total_exams,
			COALESCE(AVG(a.percentage), 0) AS average_score,
			COALESCE(SUM(CASE WHEN a.total_score >= e.passing_marks THEN 1 ELSE 0 END), 0) AS passed_exams,
			COALESCE(MAX(a.percentage), 0) AS best_score`).
		Joins("JOIN exams e ON e.id = a.exam_id").
		Where("a.user_id = ? AND a.status = ?", userID, model.AttemptCompleted).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	stats.AverageScore = model.RoundPercent(stats.AverageScore)
	return &stats, nil
}

type AttemptCounts struct {
	Total     int64
	Completed int64
}

func (r *ResultRepository) AttemptCounts() (*AttemptCounts, error) {
	var c AttemptCounts
	if err := r.DB.Model(&model.Attempt{}).Count(&c.Total).Error; err != nil {
		return nil, err
	}
	if err := r.DB.Model(&model.Attempt{}).Where("status = ?", model.AttemptCompleted).Count(&c.Completed).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

package repository

import (
	"context"
	"exam_portal_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) WithContext(ctx context.Context) *AttemptRepository {
	return &AttemptRepository{DB: r.DB.WithContext(ctx)}
}

// Transaction 在事务中执行 fn，fn 返回错误时回滚
func (r *AttemptRepository) Transaction(fn func(tx *gorm.DB, repo *AttemptRepository) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return fn(tx, &AttemptRepository{DB: tx})
	})
}

func (r *AttemptRepository) FindByID(id uint) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.First(&attempt, id).Error
	return &attempt, err
}

// FindForUpdate 加行锁读取（sqlite 方言会忽略 FOR UPDATE，依赖单写连接串行化）
func (r *AttemptRepository) FindForUpdate(id uint) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&attempt, id).Error
	return &attempt, err
}

// FindActive 查找某考生某考试未放弃的记录
func (r *AttemptRepository) FindActive(userID, examID uint) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.Where("active_key = ?", *model.ActiveKeyFor(userID, examID)).First(&attempt).Error
	return &attempt, err
}

func (r *AttemptRepository) Create(attempt *model.Attempt) error {
	return r.DB.Create(attempt).Error
}

func (r *AttemptRepository) ListAnswers(attemptID uint) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.DB.Where("attempt_id = ?", attemptID).Order("question_id ASC").Find(&answers).Error
	return answers, err
}

// ReplaceAnswers 删除旧答案后整体写入新答案，需在事务中调用
func (r *AttemptRepository) ReplaceAnswers(attemptID uint, answers []model.Answer) error {
	if err := r.DB.Where("attempt_id = ?", attemptID).Delete(&model.Answer{}).Error; err != nil {
		return err
	}
	if len(answers) > 0 {
		for i := range answers {
			answers[i].ID = 0
			answers[i].AttemptID = attemptID
		}
		if err := r.DB.Create(&answers).Error; err != nil {
			return err
		}
	}
	return r.DB.Model(&model.Attempt{}).Where("id = ?", attemptID).
		Update("answered_count", len(answers)).Error
}

func (r *AttemptRepository) UpdateAnswerGrade(answerID uint, isCorrect bool, marks int) error {
	return r.DB.Model(&model.Answer{}).Where("id = ?", answerID).Updates(map[string]interface{}{
		"is_correct":     isCorrect,
		"marks_obtained": marks,
	}).Error
}

// Finalize 仅当记录仍为 in_progress 时写入成绩，返回是否更新成功
func (r *AttemptRepository) Finalize(attempt *model.Attempt) (bool, error) {
	res := r.DB.Model(&model.Attempt{}).
		Where("id = ? AND status = ?", attempt.ID, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":         model.AttemptCompleted,
			"end_time":       attempt.EndTime,
			"total_score":    attempt.TotalScore,
			"percentage":     attempt.Percentage,
			"answered_count": attempt.AnsweredCount,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Abandon 释放 active_key，使考生可以重新开始该考试
func (r *AttemptRepository) Abandon(attemptID uint, at time.Time) (bool, error) {
	res := r.DB.Model(&model.Attempt{}).
		Where("id = ? AND status = ?", attemptID, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":     model.AttemptAbandoned,
			"active_key": gorm.Expr("NULL"),
			"end_time":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// StatusByExam 某考生各考试当前有效记录的状态
func (r *AttemptRepository) StatusByExam(userID uint) (map[uint]model.Attempt, error) {
	var attempts []model.Attempt
	if err := r.DB.Where("user_id = ? AND status <> ?", userID, model.AttemptAbandoned).Find(&attempts).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]model.Attempt, len(attempts))
	for _, a := range attempts {
		out[a.ExamID] = a
	}
	return out, nil
}

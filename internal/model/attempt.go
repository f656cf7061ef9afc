package model

import (
	"fmt"
	"math"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// swagger:model Attempt
type Attempt struct {
	BaseModel
	UserID uint `gorm:"not null;index:idx_attempt_user_exam" json:"user_id"`
	ExamID uint `gorm:"not null;index:idx_attempt_user_exam" json:"exam_id"`
	// ActiveKey 在未放弃期间为 "<user>:<exam>"，唯一索引保证同一考生同一考试最多一条有效记录
	ActiveKey     *string       `gorm:"size:64;uniqueIndex" json:"-"`
	Status        AttemptStatus `gorm:"size:20;not null;default:in_progress;index" json:"status"`
	StartTime     time.Time     `gorm:"not null" json:"start_time"`
	EndTime       *time.Time    `json:"end_time"`
	TotalScore    int           `gorm:"not null;default:0" json:"total_score"`
	Percentage    float64       `gorm:"type:decimal(5,2);not null;default:0" json:"percentage"`
	AnsweredCount int           `gorm:"not null;default:0" json:"answered_count"`
	Answers       []Answer      `gorm:"constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

func (Attempt) TableName() string {
	return "exam_attempts"
}

func ActiveKeyFor(userID, examID uint) *string {
	k := fmt.Sprintf("%d:%d", userID, examID)
	return &k
}

// Deadline 开始时间加考试时长
func (a *Attempt) Deadline(durationMinutes int) time.Time {
	return a.StartTime.Add(time.Duration(durationMinutes) * time.Minute)
}

// RemainingSeconds 剩余秒数，最小为 0
func (a *Attempt) RemainingSeconds(durationMinutes int, now time.Time) int {
	remaining := int(a.Deadline(durationMinutes).Sub(now) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// swagger:model Answer
type Answer struct {
	BaseModel
	AttemptID        uint    `gorm:"not null;uniqueIndex:idx_answer_attempt_question" json:"attempt_id"`
	QuestionID       uint    `gorm:"not null;uniqueIndex:idx_answer_attempt_question" json:"question_id"`
	SelectedOptionID *uint   `json:"selected_option_id"`
	BoolAnswer       *bool   `json:"bool_answer"`
	AnswerText       *string `gorm:"type:text" json:"answer_text"`
	IsCorrect        bool    `gorm:"not null;default:false" json:"is_correct"`
	MarksObtained    int     `gorm:"not null;default:0" json:"marks_obtained"`
}

func (Answer) TableName() string {
	return "exam_answers"
}

// RoundPercent 保留两位小数
func RoundPercent(v float64) float64 {
	return math.Round(v*100) / 100
}

// Percentage score/total*100，两位小数；总分为 0 时返回 0
func Percentage(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return RoundPercent(float64(score) / float64(total) * 100)
}

package model

import "time"

type ExamStatus string

const (
	ExamScheduled ExamStatus = "scheduled"
	ExamActive    ExamStatus = "active"
	ExamCompleted ExamStatus = "completed"
	ExamArchived  ExamStatus = "archived"
)

func (s ExamStatus) Valid() bool {
	switch s {
	case ExamScheduled, ExamActive, ExamCompleted, ExamArchived:
		return true
	}
	return false
}

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
)

func (t QuestionType) Valid() bool {
	return t == MultipleChoice || t == TrueFalse || t == ShortAnswer
}

// HasOptions 选择题与判断题使用选项
func (t QuestionType) HasOptions() bool {
	return t == MultipleChoice || t == TrueFalse
}

// swagger:model Exam
type Exam struct {
	BaseModel
	Title           string     `gorm:"size:200;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	StartTime       time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime         time.Time  `gorm:"not null" json:"end_time"`
	DurationMinutes int        `gorm:"not null" json:"duration_minutes"`
	TotalMarks      int        `gorm:"not null" json:"total_marks"`
	PassingMarks    int        `gorm:"not null" json:"passing_marks"`
	Status          ExamStatus `gorm:"size:20;not null;default:scheduled;index" json:"status"`
	CreatedBy       uint       `gorm:"index" json:"created_by"`
	Questions       []Question `gorm:"constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

// IsOpenAt 考试处于 active 且 t 落在 [StartTime, EndTime] 内
func (e *Exam) IsOpenAt(t time.Time) bool {
	return e.Status == ExamActive && !t.Before(e.StartTime) && !t.After(e.EndTime)
}

// PassingPercentage 派生值，不落库
func (e *Exam) PassingPercentage() float64 {
	if e.TotalMarks == 0 {
		return 0
	}
	return RoundPercent(float64(e.PassingMarks) / float64(e.TotalMarks) * 100)
}

// swagger:model Question
type Question struct {
	BaseModel
	ExamID          uint         `gorm:"not null;uniqueIndex:idx_question_exam_order" json:"exam_id"`
	QuestionText    string       `gorm:"type:text;not null" json:"question_text"`
	QuestionType    QuestionType `gorm:"size:20;not null" json:"question_type"`
	Marks           int          `gorm:"not null" json:"marks"`
	Order           int          `gorm:"column:display_order;not null;uniqueIndex:idx_question_exam_order" json:"order"`
	ReferenceAnswer string       `gorm:"type:text" json:"reference_answer,omitempty"`
	Options         []Option     `gorm:"constraint:OnDelete:CASCADE" json:"options,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectOption 返回被标记为正确的选项
func (q *Question) CorrectOption() *Option {
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			return &q.Options[i]
		}
	}
	return nil
}

// OptionByID 仅在本题选项中查找
func (q *Question) OptionByID(id uint) *Option {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i]
		}
	}
	return nil
}

// swagger:model Option
type Option struct {
	BaseModel
	QuestionID uint   `gorm:"not null;index" json:"question_id"`
	OptionText string `gorm:"size:500;not null" json:"option_text"`
	IsCorrect  bool   `gorm:"not null;default:false" json:"is_correct"`
	Order      int    `gorm:"column:display_order;not null" json:"order"`
}

func (Option) TableName() string {
	return "question_options"
}

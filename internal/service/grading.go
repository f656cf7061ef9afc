package service

import (
	"encoding/json"
	"exam_portal_backend/internal/model"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ShortAnswerStrategy 简答题评分策略
type ShortAnswerStrategy interface {
	Name() string
	Grade(q *model.Question, text string) int
}

// PlaceholderStrategy 非空作答给一半分（向下取整）
type PlaceholderStrategy struct{}

func (PlaceholderStrategy) Name() string { return "placeholder" }

func (PlaceholderStrategy) Grade(q *model.Question, text string) int {
	if normalizeText(text) == "" {
		return 0
	}
	return int(math.Floor(float64(q.Marks) * 0.5))
}

// ExactMatchStrategy 与参考答案完全一致（忽略首尾空白与大小写）得满分
type ExactMatchStrategy struct{}

func (ExactMatchStrategy) Name() string { return "exact" }

func (ExactMatchStrategy) Grade(q *model.Question, text string) int {
	given := normalizeText(text)
	want := normalizeText(q.ReferenceAnswer)
	if given == "" || want == "" || given != want {
		return 0
	}
	return q.Marks
}

func NewShortAnswerStrategy(name string) (ShortAnswerStrategy, error) {
	switch name {
	case "", "placeholder":
		return PlaceholderStrategy{}, nil
	case "exact":
		return ExactMatchStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown short answer strategy %q", name)
	}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Grader 按题型评分，简答题委托给 ShortAnswer
type Grader struct {
	ShortAnswer ShortAnswerStrategy
}

func NewGrader(shortAnswer ShortAnswerStrategy) *Grader {
	if shortAnswer == nil {
		shortAnswer = PlaceholderStrategy{}
	}
	return &Grader{ShortAnswer: shortAnswer}
}

type GradedQuestion struct {
	QuestionID uint
	AnswerID   uint // 0 表示未作答
	Answered   bool
	IsCorrect  bool
	Marks      int
}

type GradeSummary struct {
	Questions  []GradedQuestion
	TotalScore int
	Answered   int
	Unanswered int
}

// GradeAttempt 每道题恰好评分一次，未作答记 0 分
func (g *Grader) GradeAttempt(questions []model.Question, answers []model.Answer) GradeSummary {
	byQuestion := make(map[uint]*model.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	summary := GradeSummary{Questions: make([]GradedQuestion, 0, len(questions))}
	for i := range questions {
		q := &questions[i]
		gq := GradedQuestion{QuestionID: q.ID}
		if a, ok := byQuestion[q.ID]; ok {
			gq.AnswerID = a.ID
			gq.Answered = true
			gq.Marks = g.GradeQuestion(q, a)
			gq.IsCorrect = gq.Marks > 0
			summary.Answered++
		} else {
			summary.Unanswered++
		}
		summary.TotalScore += gq.Marks
		summary.Questions = append(summary.Questions, gq)
	}
	return summary
}

func (g *Grader) GradeQuestion(q *model.Question, a *model.Answer) int {
	switch q.QuestionType {
	case model.MultipleChoice:
		if a.SelectedOptionID == nil {
			return 0
		}
		opt := q.OptionByID(*a.SelectedOptionID)
		if opt != nil && opt.IsCorrect {
			return q.Marks
		}
	case model.TrueFalse:
		if a.BoolAnswer == nil {
			return 0
		}
		correct := q.CorrectOption()
		if correct == nil {
			return 0
		}
		want, ok := OptionTruth(q, correct)
		if ok && *a.BoolAnswer == want {
			return q.Marks
		}
	case model.ShortAnswer:
		if a.AnswerText == nil {
			return 0
		}
		return g.ShortAnswer.Grade(q, *a.AnswerText)
	}
	return 0
}

func orderedOptions(q *model.Question) []model.Option {
	opts := make([]model.Option, len(q.Options))
	copy(opts, q.Options)
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].Order != opts[j].Order {
			return opts[i].Order < opts[j].Order
		}
		return opts[i].ID < opts[j].ID
	})
	return opts
}

// OptionTruth 判断题选项对应的真值：文本为 true/false 时以文本为准，否则按顺序第一个为 true
func OptionTruth(q *model.Question, opt *model.Option) (bool, bool) {
	switch normalizeText(opt.OptionText) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	for i, o := range orderedOptions(q) {
		if o.ID != opt.ID {
			continue
		}
		switch i {
		case 0:
			return true, true
		case 1:
			return false, true
		}
	}
	return false, false
}

// BuildAnswers 把客户端提交的原始答案转换为答案记录，空值与非本试卷题目被忽略
func BuildAnswers(questions []model.Question, raw map[string]interface{}) []model.Answer {
	answers := make([]model.Answer, 0, len(raw))
	for i := range questions {
		q := &questions[i]
		v, ok := raw[strconv.FormatUint(uint64(q.ID), 10)]
		if !ok || isEmptyAnswer(v) {
			continue
		}

		a := model.Answer{QuestionID: q.ID}
		switch q.QuestionType {
		case model.MultipleChoice:
			if id, ok := toOptionID(v); ok && q.OptionByID(id) != nil {
				a.SelectedOptionID = &id
			}
		case model.TrueFalse:
			if b, ok := toTruth(q, v); ok {
				a.BoolAnswer = &b
			}
		case model.ShortAnswer:
			text := toText(v)
			a.AnswerText = &text
		default:
			continue
		}
		answers = append(answers, a)
	}
	return answers
}

func isEmptyAnswer(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func toOptionID(v interface{}) (uint, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != math.Trunc(t) {
			return 0, false
		}
		return uint(t), true
	case int:
		if t <= 0 {
			return 0, false
		}
		return uint(t), true
	case json.Number:
		n, err := strconv.ParseUint(t.String(), 10, 32)
		return uint(n), err == nil && n > 0
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(t), 10, 32)
		return uint(n), err == nil && n > 0
	}
	return 0, false
}

// toTruth 接受布尔值、"true"/"false" 或本题某个选项的 ID
func toTruth(q *model.Question, v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch normalizeText(t) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	if id, ok := toOptionID(v); ok {
		if opt := q.OptionByID(id); opt != nil {
			return OptionTruth(q, opt)
		}
	}
	return false, false
}

func toText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// AnswerValue 还原为客户端提交时的形式，用于断点续答
func AnswerValue(q *model.Question, a *model.Answer) interface{} {
	switch q.QuestionType {
	case model.MultipleChoice:
		if a.SelectedOptionID != nil {
			return *a.SelectedOptionID
		}
	case model.TrueFalse:
		if a.BoolAnswer != nil {
			return *a.BoolAnswer
		}
	case model.ShortAnswer:
		if a.AnswerText != nil {
			return *a.AnswerText
		}
	}
	return nil
}

package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"fmt"
	"strconv"
)

type ReportService struct {
	ResultRepo *repository.ResultRepository
	UserRepo   *repository.UserRepository
	ExamRepo   *repository.ExamRepository
}

func NewReportService(resultRepo *repository.ResultRepository, userRepo *repository.UserRepository, examRepo *repository.ExamRepository) *ReportService {
	return &ReportService{ResultRepo: resultRepo, UserRepo: userRepo, ExamRepo: examRepo}
}

// Generate 按类型导出 CSV：results | users | exams
func (s *ReportService) Generate(ctx context.Context, reportType string) (string, error) {
	var records [][]string
	var err error
	switch reportType {
	case "results":
		records, err = s.resultRecords(ctx)
	case "users":
		records, err = s.userRecords(ctx)
	case "exams":
		records, err = s.examRecords(ctx)
	default:
		return "", util.Invalid(util.MsgInvalidReportType)
	}
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *ReportService) resultRecords(ctx context.Context) ([][]string, error) {
	rows, err := s.ResultRepo.WithContext(ctx).All()
	if err != nil {
		return nil, err
	}
	records := [][]string{{"Result ID", "Student", "Username", "Exam", "Score", "Total Marks", "Percentage", "Status", "Completed At"}}
	for _, r := range rows {
		status := "Failed"
		if r.Passed() {
			status = "Passed"
		}
		completed := ""
		if r.EndTime != nil {
			completed = r.EndTime.Format(util.TimeFormat)
		}
		records = append(records, []string{
			strconv.FormatUint(uint64(r.AttemptID), 10),
			r.FullName,
			r.Username,
			r.ExamTitle,
			strconv.Itoa(r.TotalScore),
			strconv.Itoa(r.TotalMarks),
			fmt.Sprintf("%.2f", r.Percentage),
			status,
			completed,
		})
	}
	return records, nil
}

func (s *ReportService) userRecords(ctx context.Context) ([][]string, error) {
	users, err := s.UserRepo.WithContext(ctx).All()
	if err != nil {
		return nil, err
	}
	records := [][]string{{"User ID", "Username", "Email", "Full Name", "Role", "Active", "Created At"}}
	for _, u := range users {
		records = append(records, []string{
			strconv.FormatUint(uint64(u.ID), 10),
			u.Username,
			u.Email,
			u.FullName,
			string(u.Role),
			strconv.FormatBool(u.IsActive),
			u.CreatedAt.Format(util.TimeFormat),
		})
	}
	return records, nil
}

func (s *ReportService) examRecords(ctx context.Context) ([][]string, error) {
	exams, err := s.ExamRepo.WithContext(ctx).All()
	if err != nil {
		return nil, err
	}
	records := [][]string{{"Exam ID", "Title", "Status", "Start Time", "End Time", "Duration (min)", "Total Marks", "Passing Marks", "Questions", "Attempts"}}
	for _, e := range exams {
		records = append(records, []string{
			strconv.FormatUint(uint64(e.ID), 10),
			e.Title,
			string(e.Status),
			e.StartTime.Format(util.TimeFormat),
			e.EndTime.Format(util.TimeFormat),
			strconv.Itoa(e.DurationMinutes),
			strconv.Itoa(e.TotalMarks),
			strconv.Itoa(e.PassingMarks),
			strconv.FormatInt(e.QuestionCount, 10),
			strconv.FormatInt(e.AttemptCount, 10),
		})
	}
	return records, nil
}

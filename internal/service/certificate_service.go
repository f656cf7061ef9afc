package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/util"
	"fmt"
	"net/url"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

type CertificateService struct {
	Results *ResultService
	Cfg     *config.Config
}

func NewCertificateService(results *ResultService, cfg *config.Config) *CertificateService {
	return &CertificateService{Results: results, Cfg: cfg}
}

// VerificationCode 证书校验码，由成绩 ID 与考生 ID 签名得到
func (s *CertificateService) VerificationCode(attemptID, userID uint) string {
	mac := hmac.New(sha256.New, []byte(s.Cfg.Session.RememberSecret))
	fmt.Fprintf(mac, "certificate:%d:%d", attemptID, userID)
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

func (s *CertificateService) verifyURL(attemptID uint, code string) string {
	q := url.Values{}
	q.Set("result_id", fmt.Sprint(attemptID))
	q.Set("code", code)
	return s.Cfg.App.BaseURL + "/api/verify-certificate?" + q.Encode()
}

// Generate 仅为通过的考试生成 PDF 证书，返回文件内容与文件名
func (s *CertificateService) Generate(ctx context.Context, sess *model.Session, attemptID uint) ([]byte, string, error) {
	result, err := s.Results.GetResult(ctx, sess, attemptID)
	if err != nil {
		return nil, "", err
	}
	if !result.Passed {
		return nil, "", util.ErrNotPassed
	}

	code := s.VerificationCode(result.AttemptID, result.UserID)
	png, err := qrcode.Encode(s.verifyURL(result.AttemptID, code), qrcode.Medium, 256)
	if err != nil {
		return nil, "", err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Certificate of Completion", true)
	pdf.AddPage()

	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetFont("Helvetica", "B", 30)
	pdf.SetY(35)
	pdf.CellFormat(0, 14, tr("Certificate of Completion"), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.Ln(8)
	pdf.CellFormat(0, 10, tr("This is to certify that"), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 14, tr(result.FullName), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 10, tr("has successfully passed the exam"), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, tr(result.ExamTitle), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 13)
	pdf.Ln(4)
	score := fmt.Sprintf("Score: %d / %d (%.2f%%)", result.TotalScore, result.TotalMarks, result.Percentage)
	pdf.CellFormat(0, 9, tr(score), "", 1, "C", false, 0, "")
	if result.EndTime != nil {
		pdf.CellFormat(0, 9, tr("Date: "+result.EndTime.Format("January 2, 2006")), "", 1, "C", false, 0, "")
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("verify-qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("verify-qr", 240, 150, 35, 35, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetXY(20, 185)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s  |  Verification code: %s", s.Cfg.App.Name, code)), "", 0, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), fmt.Sprintf("certificate_%d.pdf", result.AttemptID), nil
}

type CertificateVerification struct {
	Valid      bool    `json:"valid"`
	FullName   string  `json:"full_name,omitempty"`
	ExamTitle  string  `json:"exam_title,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
}

// Verify 公开接口，校验码不匹配或考试未通过时返回 valid=false
func (s *CertificateService) Verify(ctx context.Context, attemptID uint, code string) (*CertificateVerification, error) {
	row, err := s.Results.ResultRepo.WithContext(ctx).FindByAttempt(attemptID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &CertificateVerification{}, nil
	}
	if err != nil {
		return nil, err
	}
	want := s.VerificationCode(row.AttemptID, row.UserID)
	if !hmac.Equal([]byte(want), []byte(code)) || !row.Passed() {
		return &CertificateVerification{}, nil
	}
	return &CertificateVerification{
		Valid:      true,
		FullName:   row.FullName,
		ExamTitle:  row.ExamTitle,
		Percentage: row.Percentage,
	}, nil
}

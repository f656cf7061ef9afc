package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	ItemsPerPage = 10
	BcryptCost   = 12
)

// 上传头像允许的类型
var AllowedImageMimes = []string{"image/jpeg", "image/png", "image/gif"}

// 返回给前端的提示语
const (
	MsgAccessDenied        = "Access denied"
	MsgInsufficientPerms   = "Insufficient permissions"
	MsgAuthRequired        = "Authentication required"
	MsgSessionExpired      = "Session expired"
	MsgExamIDRequired      = "Exam ID is required"
	MsgNotAvailable        = "Exam is not available or not active"
	MsgAlreadyCompleted    = "You have already completed this exam"
	MsgInvalidAttempt      = "Invalid attempt or attempt not found"
	MsgDeadlineExceeded    = "Exam time limit has been exceeded"
	MsgStartFailed         = "Failed to start exam"
	MsgSaveFailed          = "Failed to save answers"
	MsgSubmitFailed        = "Failed to submit exam"
	MsgAnswersSaved        = "Answers saved successfully"
	MsgExamSubmitted       = "Exam submitted successfully"
	MsgInvalidRequest      = "Invalid request data"
	MsgTooManyLogins       = "Too many login attempts. Please try again later."
	MsgTooManyRequests     = "Too many requests. Please slow down."
	MsgInvalidCredentials  = "Invalid username or password"
	MsgLoginSuccess        = "Login successful"
	MsgLogoutSuccess       = "Logged out successfully"
	MsgRegisterSuccess     = "Registration successful"
	MsgUsernameTaken       = "Username already exists"
	MsgEmailRegistered     = "Email already registered"
	MsgInternalError       = "An error occurred. Please try again later."
	MsgNotFound            = "Resource not found"
	MsgExamHasAttempts     = "Exam questions cannot be changed after students have started it"
	MsgNotPassed           = "Certificate is only available for passed exams"
	MsgUserNotFound        = "User not found"
	MsgCannotDeleteSelf    = "You cannot deactivate your own account"
	MsgProfileUpdated      = "Profile updated successfully"
	MsgPasswordChanged     = "Password changed successfully"
	MsgCurrentPasswordBad  = "Current password is incorrect"
	MsgUserCreated         = "User created successfully"
	MsgUserDeactivated     = "User deactivated successfully"
	MsgExamCreated         = "Exam created successfully"
	MsgExamUpdated         = "Exam updated successfully"
	MsgExamArchived        = "Exam archived successfully"
	MsgAttemptAbandoned    = "Attempt abandoned successfully"
	MsgInvalidReportType   = "Invalid report type"
	MsgUploadFailed        = "Failed to upload profile image"
	MsgResultIDRequired    = "Result ID is required"
	MsgAttemptIDRequired   = "Attempt ID is required"
	MsgBreakdownNotAllowed = "Question breakdown is only available for completed attempts"
)

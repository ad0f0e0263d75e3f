package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem & test case errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Sandbox & Queue errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10103

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Configuration errors (10400-10499)
	ConfigInvalid ErrorCode = 10400

	// ========== Problem Errors (12000-12999) ==========

	ProblemNotFound  ErrorCode = 12000
	TestCaseNotFound ErrorCode = 12100
	TestCaseInvalid  ErrorCode = 12102

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound   ErrorCode = 13000
	LanguageNotSupported ErrorCode = 13003

	// Judge (13100-13199)
	JudgeSystemError      ErrorCode = 13101
	InvalidVerdict        ErrorCode = 13107
	VerdictTransitionDeny ErrorCode = 13108

	// ========== Sandbox & Queue Errors (14000-14999) ==========

	// Sandbox (14000-14099)
	SandboxUnavailable ErrorCode = 14000
	SandboxWorkdir     ErrorCode = 14001
	SandboxExecFailed  ErrorCode = 14002

	// Queue (14100-14199)
	QueuePublishFailed ErrorCode = 14100
	QueueMessageBroken ErrorCode = 14101

	// Artifact storage (14200-14299)
	ArtifactUploadFailed ErrorCode = 14200
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	ConfigInvalid: "Invalid configuration",

	ProblemNotFound:  "Problem not found",
	TestCaseNotFound: "Test case not found",
	TestCaseInvalid:  "Invalid test case format",

	SubmissionNotFound:   "Submission not found",
	LanguageNotSupported: "Unsupported language",

	JudgeSystemError:      "Judge system error",
	InvalidVerdict:        "Invalid verdict",
	VerdictTransitionDeny: "Verdict transition not allowed",

	SandboxUnavailable: "Sandbox engine unavailable",
	SandboxWorkdir:     "Failed to prepare sandbox work directory",
	SandboxExecFailed:  "Sandbox execution failed",

	QueuePublishFailed: "Failed to publish judge job",
	QueueMessageBroken: "Malformed judge job",

	ArtifactUploadFailed: "Failed to upload diagnostic artifact",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RecordNotFound, c == SubmissionNotFound, c == ProblemNotFound, c == TestCaseNotFound:
		return 404
	case c == ServiceUnavailable, c == SandboxUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams:
		return 400
	default:
		return 500
	}
}

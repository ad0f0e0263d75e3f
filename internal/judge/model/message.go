package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JudgeMessage is the queue payload for one judge job.
type JudgeMessage struct {
	SubmissionID int64 `json:"submission_id"`
}

// DecodeJudgeMessage accepts {"submission_id": N} or a bare integer id.
func DecodeJudgeMessage(body []byte) (JudgeMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return JudgeMessage{}, fmt.Errorf("empty judge message")
	}
	var msg JudgeMessage
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
			return JudgeMessage{}, fmt.Errorf("decode judge message failed: %w", err)
		}
	} else if err := json.Unmarshal([]byte(trimmed), &msg.SubmissionID); err != nil {
		return JudgeMessage{}, fmt.Errorf("decode judge message failed: %w", err)
	}
	if msg.SubmissionID <= 0 {
		return JudgeMessage{}, fmt.Errorf("invalid submission id %d", msg.SubmissionID)
	}
	return msg, nil
}

// VerdictEvent is published after a terminal verdict is committed.
type VerdictEvent struct {
	SubmissionID int64     `json:"submission_id"`
	ProblemID    int64     `json:"problem_id"`
	UserID       int64     `json:"user_id"`
	Language     string    `json:"language"`
	Verdict      Verdict   `json:"verdict"`
	FailedCaseID *int64    `json:"failed_case_id,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

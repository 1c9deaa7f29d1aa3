package model

import "github.com/google/uuid"

// ExamTargetRule assigns an exam either to one student or to a whole group.
// Exactly one of StudentID and GroupID is set.
type ExamTargetRule struct {
	ID        int       `json:"id"`
	ExamID    uuid.UUID `json:"exam_id"`
	StudentID *int      `json:"student_id,omitempty"`
	GroupID   *int      `json:"group_id,omitempty"`
}

// AddTargetRuleRequest is the payload for adding a target rule.
type AddTargetRuleRequest struct {
	StudentID *int `json:"student_id" binding:"required_without=GroupID,excluded_with=GroupID"`
	GroupID   *int `json:"group_id" binding:"required_without=StudentID"`
}

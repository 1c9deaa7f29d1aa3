package model

import (
	"encoding/json"
	"time"
)

// SettingKeyGradeScale holds the system-wide grade scale used when an exam has none.
const SettingKeyGradeScale = "grade_scale"

// AppSetting is one jsonb document of app_settings.
type AppSetting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UpdateGradeScaleRequest is the payload for replacing the system grade scale.
type UpdateGradeScaleRequest struct {
	GradeScale []GradeBand `json:"grade_scale" binding:"required,min=1,dive"`
}

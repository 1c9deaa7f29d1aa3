package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamSnapshotKey returns the cache key for an exam definition
func (r *CacheKeyStruct) ExamSnapshotKey(examID string) string {
	return fmt.Sprintf("exam:%s:snapshot", examID)
}

// ExamQuestionsKey returns the cache key for an exam's latest question set
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// QuestionVersionKey returns the cache key for one pinned question version
func (r *CacheKeyStruct) QuestionVersionKey(questionID string, version int) string {
	return fmt.Sprintf("question:%s:v%d", questionID, version)
}

// ExamStatisticsKey returns the cache key for an exam's attempt statistics
func (r *CacheKeyStruct) ExamStatisticsKey(examID string) string {
	return fmt.Sprintf("exam:%s:statistics", examID)
}

// SystemGradeScaleKey returns the cache key for the system-wide grade scale
func (r *CacheKeyStruct) SystemGradeScaleKey() string {
	return "settings:grade_scale"
}

// StudentRateLimitKey returns the fixed-window counter key for a student
func (r *CacheKeyStruct) StudentRateLimitKey(studentID int, window int64) string {
	return fmt.Sprintf("ratelimit:student:%d:%d", studentID, window)
}

// SweepLockKey returns the key that serializes sweeps across instances
func (r *CacheKeyStruct) SweepLockKey() string {
	return "lock:attempt_sweep"
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()

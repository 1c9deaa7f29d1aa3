package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionExamsRead allows viewing exams, target rules and statistics.
	PermissionExamsRead Permission = "exams:read"

	// PermissionExamsWrite allows creating exams, questions and target rules.
	PermissionExamsWrite Permission = "exams:write"

	// PermissionExamsPublish allows publishing, archiving and re-caching exams.
	PermissionExamsPublish Permission = "exams:publish"

	// PermissionAttemptsMonitor allows following live attempt activity of an exam.
	PermissionAttemptsMonitor Permission = "attempts:monitor"

	// PermissionAttemptsGrade allows manual grading of subjective answers.
	PermissionAttemptsGrade Permission = "attempts:grade"

	// PermissionAttemptsTerminate allows terminating attempts and running the expiry sweep.
	PermissionAttemptsTerminate Permission = "attempts:terminate"

	// PermissionSettingsRead allows viewing application settings.
	PermissionSettingsRead Permission = "settings:read"

	// PermissionSettingsWrite allows editing application settings.
	PermissionSettingsWrite Permission = "settings:write"
)

// AllPermissions lists every permission code, used when issuing a superuser token.
var AllPermissions = []Permission{
	PermissionExamsRead,
	PermissionExamsWrite,
	PermissionExamsPublish,
	PermissionAttemptsMonitor,
	PermissionAttemptsGrade,
	PermissionAttemptsTerminate,
	PermissionSettingsRead,
	PermissionSettingsWrite,
}

// String returns the permission code.
func (p Permission) String() string { return string(p) }

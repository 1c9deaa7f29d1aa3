package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam lifecycle ────────────────────────────────────────────────
	ErrExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotPublished ErrCode = "EXAM_NOT_PUBLISHED"
	ErrExamNotDraft     ErrCode = "EXAM_NOT_DRAFT"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrInvalidTiming    ErrCode = "INVALID_TIMING_CONFIG"
	ErrDuplicateTarget  ErrCode = "DUPLICATE_TARGET_RULE"

	// ─── Attempt policy ────────────────────────────────────────────────
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrNotAssigned       ErrCode = "NOT_ASSIGNED"
	ErrMaxAttempts       ErrCode = "MAX_ATTEMPTS_REACHED"
	ErrAttemptInProgress ErrCode = "ATTEMPT_IN_PROGRESS"

	// ─── Attempt state ─────────────────────────────────────────────────
	ErrAttemptNotFound      ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptNotOwned      ErrCode = "ATTEMPT_NOT_OWNED"
	ErrAttemptExpired       ErrCode = "ATTEMPT_EXPIRED"
	ErrSubmissionClosed     ErrCode = "SUBMISSION_WINDOW_CLOSED"
	ErrAttemptNotInProgress ErrCode = "ATTEMPT_NOT_IN_PROGRESS"
	ErrAttemptNotGradable   ErrCode = "ATTEMPT_NOT_GRADABLE"
	ErrAnswerNotFound       ErrCode = "ANSWER_NOT_FOUND"
	ErrAnswerNotGradable    ErrCode = "ANSWER_NOT_GRADABLE"
	ErrAnswerTypeMismatch   ErrCode = "ANSWER_TYPE_MISMATCH"
	ErrUnknownOption        ErrCode = "UNKNOWN_OPTION"
	ErrQuestionNotInAttempt ErrCode = "QUESTION_NOT_IN_ATTEMPT"
	ErrInvalidMarks         ErrCode = "INVALID_MARKS"
	ErrInvalidEventType     ErrCode = "INVALID_EVENT_TYPE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi sudah kedaluwarsa. Silakan masuk kembali."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Data sedang diubah oleh permintaan lain. Silakan coba lagi."

	// ─── Exam lifecycle ────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrExamNotPublished:
		return "Ujian ini belum dipublikasikan."
	case ErrExamNotDraft:
		return "Ujian ini tidak dalam status DRAFT."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."
	case ErrInvalidTiming:
		return "Konfigurasi waktu ujian tidak valid."
	case ErrDuplicateTarget:
		return "Aturan target serupa sudah ada untuk ujian ini."

	// ─── Attempt policy ────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrNotAssigned:
		return "Ujian ini tidak ditugaskan kepada Anda."
	case ErrMaxAttempts:
		return "Batas jumlah percobaan ujian telah tercapai."
	case ErrAttemptInProgress:
		return "Anda masih memiliki percobaan ujian yang sedang berjalan."

	// ─── Attempt state ─────────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "Percobaan ujian tidak ditemukan."
	case ErrAttemptNotOwned:
		return "Percobaan ujian ini bukan milik Anda."
	case ErrAttemptExpired:
		return "Waktu ujian telah habis."
	case ErrSubmissionClosed:
		return "Batas waktu pengumpulan telah lewat."
	case ErrAttemptNotInProgress:
		return "Percobaan ujian sudah tidak berjalan."
	case ErrAttemptNotGradable:
		return "Percobaan ujian ini tidak dapat dinilai manual."
	case ErrAnswerNotFound:
		return "Jawaban tidak ditemukan."
	case ErrAnswerNotGradable:
		return "Hanya jawaban singkat dan esai yang dapat dinilai manual."
	case ErrAnswerTypeMismatch:
		return "Format jawaban tidak sesuai dengan jenis soal."
	case ErrUnknownOption:
		return "Pilihan jawaban tidak dikenal."
	case ErrQuestionNotInAttempt:
		return "Soal ini bukan bagian dari percobaan ujian Anda."
	case ErrInvalidMarks:
		return "Nilai harus di antara 0 dan bobot soal."
	case ErrInvalidEventType:
		return "Jenis kejadian keamanan tidak dikenal."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

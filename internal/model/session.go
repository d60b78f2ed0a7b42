package model

type SessionKind string

const (
	KindFTP  SessionKind = "ftp"
	KindSFTP SessionKind = "sftp"
	KindLink SessionKind = "link"
)

type SessionStatus string

const (
	StatusQueued     SessionStatus = "Queued"
	StatusProcessing SessionStatus = "Processing"
	StatusCompleted  SessionStatus = "Completed"
	StatusFailed     SessionStatus = "Failed"
)

func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TimeLayout is the wall-clock format of StartedAt and CompletedAt.
const TimeLayout = "2006-01-02 15:04:05"

type Session struct {
	ID            string        `gorm:"primaryKey" json:"session_id"`
	Owner         string        `gorm:"index;not null" json:"owner"`
	Kind          SessionKind   `gorm:"not null" json:"type"`
	Status        SessionStatus `gorm:"index;not null" json:"status"`
	SourceLabel   string        `json:"file_name"`
	Destination   string        `json:"destination"`
	StartedAt     string        `json:"created_at"`
	StartedAtUnix int64         `json:"created_at_epoch"`
	CompletedAt   string        `json:"completed_at"`
	Progress      int           `gorm:"not null;default:0" json:"progress"`
	Detail        string        `json:"detail"`
	BytesDone     int64         `gorm:"not null;default:0" json:"bytes_done"`
	BytesTotal    int64         `gorm:"not null;default:0" json:"bytes_total"`
}

func (Session) TableName() string {
	return "sessions"
}

// StatusUpdate is the mutable part of a session written by its transfer job.
type StatusUpdate struct {
	Status     SessionStatus
	Detail     string
	Progress   int
	BytesDone  int64
	BytesTotal int64
}

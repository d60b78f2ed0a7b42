package model

import "time"

type TransferSnapshot struct {
	SessionID   string      `json:"session_id"`
	Owner       string      `json:"owner"`
	Kind        SessionKind `json:"type"`
	Source      string      `json:"source"`
	Destination string      `json:"destination"`
	StartedAt   time.Time   `json:"started_at"`
	Progress    int         `json:"progress"`
	BytesDone   int64       `json:"bytes_done"`
	BytesTotal  int64       `json:"bytes_total"`
}

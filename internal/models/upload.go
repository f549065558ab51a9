package models

// UploadStatus is the lifecycle state of an upload task.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadError     UploadStatus = "error"
)

// Terminal reports whether the status ends the upload lifecycle.
// The SSE subscription is torn down exactly once, on reaching a terminal state.
func (s UploadStatus) Terminal() bool {
	return s == UploadCompleted || s == UploadError
}

// UploadTask tracks one client-initiated upload. Created when the upload
// begins, updated from SSE progress pushes, and removed only by explicit
// user dismissal or store shutdown.
type UploadTask struct {
	ID       string       `json:"id"`
	FileName string       `json:"fileName"`
	FolderID string       `json:"folderId"`
	Progress int          `json:"progress"` // 0..100
	Status   UploadStatus `json:"status"`
	Err      string       `json:"error,omitempty"`
}

// ProgressEvent is one decoded message from an upload progress stream.
type ProgressEvent struct {
	Event    string `json:"event,omitempty"` // connected, ping, timeout, or "" for default messages
	Status   string `json:"status,omitempty"`
	Progress *int   `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
}

// FolderEvent is one decoded message from a folder change stream.
type FolderEvent struct {
	Event    string `json:"event,omitempty"`
	FolderID string `json:"folderId,omitempty"`
	Action   string `json:"action,omitempty"` // created, updated, deleted, uploaded
	EntryID  string `json:"entryId,omitempty"`
}

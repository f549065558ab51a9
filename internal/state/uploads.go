package state

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/canopy-fm/canopy/internal/api"
	"github.com/canopy-fm/canopy/internal/events"
	"github.com/canopy-fm/canopy/internal/models"
	"github.com/canopy-fm/canopy/internal/validation"
)

// BeginUpload validates the file name and size, registers a pending task,
// and starts the two-phase upload in the background: init for an upload id,
// then the multipart transfer, with progress consumed from the per-id SSE
// stream. The task id is returned immediately; lifecycle changes arrive on
// the event bus. Validation failures surface before any network call and
// mutate no state.
func (s *Store) BeginUpload(ctx context.Context, fileName string, size int64, folderID *string, content io.Reader) (string, error) {
	if err := validation.ValidateEntryName(fileName); err != nil {
		return "", err
	}
	if err := validation.ValidateUploadSize(size); err != nil {
		return "", err
	}

	task := &models.UploadTask{
		ID:       uuid.NewString(),
		FileName: fileName,
		FolderID: folderKey(folderID),
		Status:   models.UploadPending,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", fmt.Errorf("store is closed")
	}
	s.uploads[task.ID] = task
	s.mu.Unlock()

	s.publish(events.UploadEvent{BaseEvent: base(events.EventUploadQueued), Task: *task})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runUpload(ctx, task.ID, fileName, size, folderID, content)
	}()

	return task.ID, nil
}

func (s *Store) runUpload(ctx context.Context, taskID, fileName string, size int64, folderID *string, content io.Reader) {
	uploadID, err := s.client.InitUpload(ctx, api.InitUploadRequest{
		FileName:  fileName,
		SizeBytes: size,
		FolderID:  folderID,
	})
	if err != nil {
		s.failUpload(taskID, err)
		return
	}

	progress, stream, err := s.client.SubscribeUploadProgress(ctx, uploadID)
	if err != nil {
		s.failUpload(taskID, err)
		return
	}

	s.mu.Lock()
	s.streams[taskID] = stream
	s.mu.Unlock()
	defer func() {
		stream.Close()
		s.mu.Lock()
		if s.streams[taskID] == stream {
			delete(s.streams, taskID)
		}
		s.mu.Unlock()
	}()

	s.updateUpload(taskID, func(t *models.UploadTask) {
		t.Status = models.UploadUploading
	})

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		s.consumeProgress(taskID, progress)
	}()

	result, err := s.client.TransferUpload(ctx, uploadID, fileName, content)
	if err != nil {
		s.failUpload(taskID, err)
		return
	}

	// The terminal status arrives over SSE; the transfer ack alone does not
	// finish the task. If the stream ends without a terminal message, fall
	// back to the ack's status.
	<-consumed

	s.mu.Lock()
	task, ok := s.uploads[taskID]
	terminal := ok && task.Status.Terminal()
	s.mu.Unlock()
	if !terminal && result.Status == api.StatusCompleted {
		s.completeUpload(taskID)
	}
}

// consumeProgress applies SSE progress pushes to the task until the channel
// closes. A connected event resets progress to 0; ping and timeout leave
// the task uploading with its displayed progress preserved; a default
// message with a terminal status finishes the task.
func (s *Store) consumeProgress(taskID string, progress <-chan models.ProgressEvent) {
	for ev := range progress {
		switch ev.Event {
		case api.SSEConnected:
			s.updateUpload(taskID, func(t *models.UploadTask) {
				t.Progress = 0
				t.Status = models.UploadUploading
			})
		case api.SSEPing, api.SSETimeout:
			// Heartbeats and server-side stalls are not failures.
		case "":
			switch ev.Status {
			case api.StatusCompleted:
				s.completeUpload(taskID)
			case api.StatusFailed:
				msg := ev.Message
				if msg == "" {
					msg = "upload failed"
				}
				s.failUpload(taskID, fmt.Errorf("%s", msg))
			default:
				if ev.Progress != nil {
					p := clampProgress(*ev.Progress)
					s.updateUpload(taskID, func(t *models.UploadTask) {
						t.Progress = p
						t.Status = models.UploadUploading
					})
				}
			}
		}
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// updateUpload applies fn to a live task and publishes a progress event.
// Terminal tasks are left untouched.
func (s *Store) updateUpload(taskID string, fn func(*models.UploadTask)) {
	s.mu.Lock()
	task, ok := s.uploads[taskID]
	if !ok || task.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	fn(task)
	snapshot := *task
	s.mu.Unlock()

	s.publish(events.UploadEvent{BaseEvent: base(events.EventUploadProgress), Task: snapshot})
}

func (s *Store) completeUpload(taskID string) {
	s.mu.Lock()
	task, ok := s.uploads[taskID]
	if !ok || task.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	task.Status = models.UploadCompleted
	task.Progress = 100
	snapshot := *task
	s.mu.Unlock()

	s.publish(events.UploadEvent{BaseEvent: base(events.EventUploadCompleted), Task: snapshot})
	s.RevalidateQuietly(snapshot.FolderID)
}

func (s *Store) failUpload(taskID string, err error) {
	s.mu.Lock()
	task, ok := s.uploads[taskID]
	if !ok || task.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	task.Status = models.UploadError
	task.Err = err.Error()
	snapshot := *task
	s.mu.Unlock()

	log.Error().Msgf("upload %s (%s) failed: %v", taskID, snapshot.FileName, err)
	s.publish(events.UploadEvent{BaseEvent: base(events.EventUploadFailed), Task: snapshot})
}

// Upload returns a snapshot of a task.
func (s *Store) Upload(taskID string) (models.UploadTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.uploads[taskID]
	if !ok {
		return models.UploadTask{}, false
	}
	return *task, true
}

// Uploads returns snapshots of all registered tasks. Tasks stay registered
// until explicitly dismissed or the store closes.
func (s *Store) Uploads() []models.UploadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UploadTask, 0, len(s.uploads))
	for _, task := range s.uploads {
		out = append(out, *task)
	}
	return out
}

// DismissUpload removes a task from the registry, closing its progress
// stream if one is still open. Dismissal is the only way a task leaves the
// registry short of store shutdown.
func (s *Store) DismissUpload(taskID string) {
	s.mu.Lock()
	delete(s.uploads, taskID)
	stream, ok := s.streams[taskID]
	if ok {
		delete(s.streams, taskID)
	}
	s.mu.Unlock()

	if ok {
		stream.Close()
	}
}

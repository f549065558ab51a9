package state

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/canopy-fm/canopy/internal/events"
	"github.com/canopy-fm/canopy/internal/models"
)

// uploadBackend serves the two-phase upload handshake plus the quiet
// revalidation endpoints the store hits after a completed upload.
func uploadBackend(t *testing.T, uploadID string, frames [][2]string, ackStatus string) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/uploads/init", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"uploadId": uploadID})
	})
	mux.HandleFunc("/api/uploads", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-upload-id"); got != uploadID {
			t.Errorf("transfer upload id = %q, want %q", got, uploadID)
		}
		io.Copy(io.Discard, r.Body)
		writeJSON(t, w, map[string]any{"status": ackStatus})
	})
	mux.HandleFunc("/api/uploads/"+uploadID+"/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			if frame[0] != "" {
				fmt.Fprintf(w, "event: %s\n", frame[0])
			}
			fmt.Fprintf(w, "data: %s\n\n", frame[1])
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	})

	// Post-completion quiet revalidation.
	mux.HandleFunc("/api/folders/root", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing())
	})
	mux.HandleFunc("/api/folders/tree", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"results": []map[string]any{}})
	})
	mux.HandleFunc("/api/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"totalFolders": 0, "totalFiles": 0})
	})
	return mux
}

// A timeout event on the progress stream signals a server-side stall. The
// task must stay uploading and finish with the terminal status, never error.
func TestUploadTimeoutIsNotFailure(t *testing.T) {
	frames := [][2]string{
		{"connected", "{}"},
		{"", `{"progress":30}`},
		{"timeout", `{"message":"worker stalled"}`},
		{"", `{"progress":80}`},
		{"", `{"status":"completed","progress":100}`},
	}
	store, bus := newTestStore(t, uploadBackend(t, "u1", frames, "completed"))
	failed := bus.Subscribe(events.EventUploadFailed)

	taskID, err := store.BeginUpload(context.Background(), "report.txt", 5, nil, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		task, ok := store.Upload(taskID)
		return ok && task.Status.Terminal()
	})

	task, _ := store.Upload(taskID)
	if task.Status != models.UploadCompleted {
		t.Fatalf("status = %q, want completed", task.Status)
	}
	if task.Progress != 100 {
		t.Errorf("progress = %d, want 100", task.Progress)
	}
	select {
	case ev := <-failed:
		t.Errorf("upload failed event published: %+v", ev)
	default:
	}
}

func TestUploadFailedTerminalStatus(t *testing.T) {
	frames := [][2]string{
		{"connected", "{}"},
		{"", `{"progress":10}`},
		{"", `{"status":"failed","message":"checksum mismatch"}`},
	}
	store, _ := newTestStore(t, uploadBackend(t, "u2", frames, "accepted"))

	taskID, err := store.BeginUpload(context.Background(), "data.bin", 5, nil, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		task, ok := store.Upload(taskID)
		return ok && task.Status.Terminal()
	})

	task, _ := store.Upload(taskID)
	if task.Status != models.UploadError {
		t.Fatalf("status = %q, want error", task.Status)
	}
	if !strings.Contains(task.Err, "checksum mismatch") {
		t.Errorf("error = %q", task.Err)
	}
}

func TestUploadConnectedResetsProgress(t *testing.T) {
	frames := [][2]string{
		{"", `{"progress":55}`},
		{"connected", "{}"},
		{"", `{"status":"completed"}`},
	}
	store, bus := newTestStore(t, uploadBackend(t, "u3", frames, "completed"))
	progress := bus.Subscribe(events.EventUploadProgress)

	taskID, err := store.BeginUpload(context.Background(), "a.txt", 1, nil, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		task, ok := store.Upload(taskID)
		return ok && task.Status.Terminal()
	})

	sawReset := false
	for {
		select {
		case ev := <-progress:
			up := ev.(events.UploadEvent)
			if up.Task.Progress == 0 && up.Task.Status == models.UploadUploading {
				sawReset = true
			}
		default:
			if !sawReset {
				t.Error("connected event did not reset progress to 0")
			}
			return
		}
	}
}

func TestUploadValidationFailsBeforeNetwork(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	})
	store, _ := newTestStore(t, mux)

	if _, err := store.BeginUpload(context.Background(), "bad/name", 5, nil, strings.NewReader("x")); err == nil {
		t.Fatal("expected validation error for path separator in name")
	}
	if _, err := store.BeginUpload(context.Background(), "big.bin", 1<<62, nil, strings.NewReader("x")); err == nil {
		t.Fatal("expected validation error for oversized upload")
	}

	if len(store.Uploads()) != 0 {
		t.Error("failed validation must not register a task")
	}
	if hits != 0 {
		t.Errorf("validation failure made %d network calls", hits)
	}
}

func TestUploadInitFailureMarksTaskError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/uploads/init", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "folder does not exist", http.StatusBadRequest)
	})
	store, _ := newTestStore(t, mux)

	taskID, err := store.BeginUpload(context.Background(), "a.txt", 1, nil, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		task, ok := store.Upload(taskID)
		return ok && task.Status == models.UploadError
	})
}

func TestDismissUpload(t *testing.T) {
	frames := [][2]string{{"", `{"status":"completed"}`}}
	store, _ := newTestStore(t, uploadBackend(t, "u4", frames, "completed"))

	taskID, err := store.BeginUpload(context.Background(), "a.txt", 1, nil, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		task, ok := store.Upload(taskID)
		return ok && task.Status.Terminal()
	})

	store.DismissUpload(taskID)
	if _, ok := store.Upload(taskID); ok {
		t.Error("dismissed task still registered")
	}
	if len(store.Uploads()) != 0 {
		t.Errorf("uploads registry not empty: %+v", store.Uploads())
	}
}

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/canopy-fm/canopy/internal/constants"
	"github.com/canopy-fm/canopy/internal/models"
)

// Named SSE events the backend sends alongside default messages.
const (
	SSEConnected = "connected" // stream ready; progress display resets to 0
	SSEPing      = "ping"      // heartbeat, no state change
	SSETimeout   = "timeout"   // server-side stall; NOT a failure
)

// Terminal statuses carried by default messages. Receiving one closes the
// client-side connection.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// sseFrame is one parsed event from a text/event-stream connection.
type sseFrame struct {
	Name string // named event, or "" for default messages
	Data string
}

// Stream is a live server-push subscription. Closing it is idempotent;
// the event channel is closed when the stream ends for any reason.
type Stream struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Close tears down the subscription. Safe to call more than once.
func (s *Stream) Close() { s.cancel() }

// Done is closed when the parse loop has exited.
func (s *Stream) Done() <-chan struct{} { return s.done }

// openSSE connects to a text/event-stream endpoint and feeds parsed frames
// to handle until the stream ends, the context is cancelled, or handle
// returns false. Transport errors end the local stream without
// synthesizing any terminal status; the last authoritative message stands.
func (c *Client) openSSE(ctx context.Context, path string, handle func(ctx context.Context, f sseFrame) bool) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream := &Stream{cancel: cancel, done: make(chan struct{})}

	req, err := nethttp.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("SSE connect failed: %w", err)
	}
	if resp.StatusCode != nethttp.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &StatusError{StatusCode: resp.StatusCode, Method: "GET", Path: path, Body: "SSE connect rejected"}
	}

	go func() {
		defer close(stream.done)
		defer resp.Body.Close()
		defer cancel()

		scanner := bufio.NewScanner(resp.Body)
		var eventName, data string

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()

			if line == "" {
				// Named events may arrive with no data line; they still
				// carry meaning (connected, ping, timeout) and must reach
				// the handler.
				if data != "" || eventName != "" {
					if !handle(ctx, sseFrame{Name: eventName, Data: data}) {
						return
					}
				}
				eventName = ""
				data = ""
				continue
			}

			if strings.HasPrefix(line, ":") {
				continue // comment / keepalive
			}
			if strings.HasPrefix(line, "event:") {
				eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			} else if strings.HasPrefix(line, "data:") {
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Debug().Msgf("SSE stream %s ended: %v", path, err)
		}
	}()

	return stream, nil
}

// SubscribeUploadProgress opens the per-upload progress stream. Events are
// delivered on the returned channel, which is closed when a terminal
// status arrives, the stream fails, or the subscription is closed.
//
// Event semantics:
//   - connected: stream ready; progress resets to 0, no error implied
//   - ping: heartbeat, no state change
//   - timeout: server signals a stall; the stream stays open and the task
//     must not be marked failed
//   - default message with status completed/failed: terminal; the
//     connection is closed after delivery
func (c *Client) SubscribeUploadProgress(ctx context.Context, uploadID string) (<-chan models.ProgressEvent, *Stream, error) {
	events := make(chan models.ProgressEvent, constants.SSEBufferSize)

	path := fmt.Sprintf("/api/uploads/%s/events", uploadID)
	stream, err := c.openSSE(ctx, path, func(ctx context.Context, f sseFrame) bool {
		var ev models.ProgressEvent
		if f.Data != "" {
			if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
				log.Debug().Msgf("upload %s: unparseable SSE data %q", uploadID, f.Data)
				return true
			}
		}
		ev.Event = f.Name

		terminal := f.Name == "" && (ev.Status == StatusCompleted || ev.Status == StatusFailed)
		if terminal {
			// The final status must reach the consumer even when the
			// buffer is full of stale progress updates.
			select {
			case events <- ev:
			case <-ctx.Done():
			}
			return false
		}

		select {
		case events <- ev:
		default:
			// Consumer stalled; progress updates are droppable.
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}

	// Close the consumer channel once the parse loop ends for any reason.
	go func() {
		<-stream.Done()
		close(events)
	}()

	return events, stream, nil
}

// SubscribeFolderEvents opens the per-folder change notification stream.
// The stream has no terminal message; it runs until closed or the
// connection drops.
func (c *Client) SubscribeFolderEvents(ctx context.Context, folderID string) (<-chan models.FolderEvent, *Stream, error) {
	if err := ValidateEntryID(folderID); err != nil {
		return nil, nil, err
	}

	events := make(chan models.FolderEvent, constants.SSEBufferSize)

	path := fmt.Sprintf("/api/folders/%s/events", folderID)
	stream, err := c.openSSE(ctx, path, func(_ context.Context, f sseFrame) bool {
		if f.Name == SSEPing || f.Data == "" {
			return true
		}
		var ev models.FolderEvent
		if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
			log.Debug().Msgf("folder %s: unparseable SSE data %q", folderID, f.Data)
			return true
		}
		ev.Event = f.Name

		select {
		case events <- ev:
		default:
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}

	go func() {
		<-stream.Done()
		close(events)
	}()

	return events, stream, nil
}

package state

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/canopy-fm/canopy/internal/events"
)

// RevalidateQuietly schedules a background refetch of the given parent's
// children, the root listing, the aggregate counts, and the whole tree.
// Scheduling is debounced and coalesced per key: a pending timer for the
// same parent is replaced, so bursts of optimistic updates collapse into a
// single refetch. The optimistic state stands visually in the meantime;
// the refetch corrects any divergence without a loading flash.
func (s *Store) RevalidateQuietly(parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if timer, ok := s.revalidateTimers[parentID]; ok {
		timer.Stop()
	}
	s.revalidateTimers[parentID] = time.AfterFunc(s.revalidateDelay, func() {
		s.mu.Lock()
		delete(s.revalidateTimers, parentID)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.revalidateNow(parentID)
	})
}

// revalidateNow performs the quiet refetch. No loading flag is raised; the
// listing, caches, and counts are replaced in place as responses land.
func (s *Store) revalidateNow(parentID string) {
	ctx := context.Background()

	s.mu.Lock()
	_, treeCached := s.treeChildren[parentID]
	_, gridCached := s.gridChildren[parentID]
	atRoot := s.folderID == nil && s.searchQuery == ""
	s.mu.Unlock()

	if parentID != "" && treeCached {
		if _, err := s.FetchChildrenFor(ctx, parentID, ViewTree); err != nil {
			log.Debug().Msgf("revalidate: tree children refetch for %s failed: %v", parentID, err)
		}
	}
	if parentID != "" && gridCached {
		if _, err := s.FetchChildrenFor(ctx, parentID, ViewGrid); err != nil {
			log.Debug().Msgf("revalidate: grid children refetch for %s failed: %v", parentID, err)
		}
	}
	if atRoot {
		if err := s.fetchListing(ctx, true); err != nil {
			log.Debug().Msgf("revalidate: root listing refetch failed: %v", err)
		}
	}
	if counts, err := s.client.AggregateCounts(ctx); err == nil {
		s.publish(events.CountsChangedEvent{BaseEvent: base(events.EventCountsChanged), Counts: *counts})
	} else {
		log.Debug().Msgf("revalidate: aggregate counts refetch failed: %v", err)
	}
	if err := s.FetchFolderTree(ctx); err != nil {
		log.Debug().Msgf("revalidate: tree refetch failed: %v", err)
	}
}

// WatchFolder subscribes to a folder's change notification stream and
// schedules a quiet revalidation for each push. Notices are also relayed on
// the event bus. The returned stop function closes the subscription; it is
// also closed by Close.
func (s *Store) WatchFolder(ctx context.Context, folderID string) (func(), error) {
	notices, stream, err := s.client.SubscribeFolderEvents(ctx, folderID)
	if err != nil {
		return nil, err
	}

	key := "watch:" + folderID
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stream.Close()
		return nil, context.Canceled
	}
	if prev, ok := s.streams[key]; ok {
		prev.Close()
	}
	s.streams[key] = stream
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for notice := range notices {
			s.publish(events.FolderNotifyEvent{BaseEvent: base(events.EventFolderNotify), Notice: notice})
			s.RevalidateQuietly(folderID)
		}
		s.mu.Lock()
		if s.streams[key] == stream {
			delete(s.streams, key)
		}
		s.mu.Unlock()
	}()

	return stream.Close, nil
}

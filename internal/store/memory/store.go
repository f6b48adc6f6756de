// Package memory provides an in-memory playlist store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

type storedPlay struct {
	event playlist.PlayEvent
	seq   int64
}

// Store keeps shows and plays in maps guarded by a single mutex.
type Store struct {
	mu    sync.RWMutex
	shows map[string]playlist.Show
	plays map[string]storedPlay
	seq   int64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		shows: make(map[string]playlist.Show),
		plays: make(map[string]storedPlay),
	}
}

// ShowExists reports whether a show with url is stored.
func (s *Store) ShowExists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.shows[url]
	return ok, nil
}

// SaveShow stores the show unless its URL already exists.
func (s *Store) SaveShow(_ context.Context, show playlist.Show) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putShow(show), nil
}

// SavePlayEvents stores plays whose (show, artist, song) key is new.
func (s *Store) SavePlayEvents(_ context.Context, showURL string, events []playlist.PlayEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putPlays(showURL, events), nil
}

// IngestShow stores the show and its plays under one lock.
func (s *Store) IngestShow(ctx context.Context, show playlist.Show, events []playlist.PlayEvent) (bool, int, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	created := s.putShow(show)
	return created, s.putPlays(show.URL, events), nil
}

func (s *Store) putShow(show playlist.Show) bool {
	if _, ok := s.shows[show.URL]; ok {
		return false
	}
	s.shows[show.URL] = show
	return true
}

func (s *Store) putPlays(showURL string, events []playlist.PlayEvent) int {
	inserted := 0
	for _, ev := range events {
		ev.ShowURL = showURL
		key := ev.Key()
		if _, ok := s.plays[key]; ok {
			continue
		}
		s.seq++
		s.plays[key] = storedPlay{event: ev, seq: s.seq}
		inserted++
	}
	return inserted
}

// QueryHistory joins plays to their shows for targetName, newest first.
func (s *Store) QueryHistory(_ context.Context, targetName string) ([]playlist.HistoryRow, error) {
	s.mu.RLock()
	matched := make([]storedPlay, 0, len(s.plays))
	shows := make(map[string]playlist.Show)
	for _, p := range s.plays {
		show, ok := s.shows[p.event.ShowURL]
		if !ok || show.TargetName != targetName {
			continue
		}
		shows[show.URL] = show
		matched = append(matched, p)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.event.IngestedAt.Equal(b.event.IngestedAt) {
			return a.event.IngestedAt.After(b.event.IngestedAt)
		}
		return a.seq > b.seq
	})

	rows := make([]playlist.HistoryRow, 0, len(matched))
	for _, p := range matched {
		show := shows[p.event.ShowURL]
		rows = append(rows, playlist.HistoryRow{
			Artist:   p.event.Artist,
			Song:     p.event.Song,
			Album:    p.event.Album,
			DateText: show.DateText,
			TimeText: show.TimeText,
		})
	}
	return rows, nil
}

// CountShows returns the number of stored shows for targetName.
func (s *Store) CountShows(_ context.Context, targetName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, show := range s.shows {
		if show.TargetName == targetName {
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Package storetest holds the behavior suite every playlist.Store backend must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) playlist.Store

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("SaveShowIsIdempotent", func(t *testing.T) { testSaveShowIsIdempotent(t, newStore(t)) })
	t.Run("SavePlayEventsSkipsDuplicates", func(t *testing.T) { testSavePlayEventsSkipsDuplicates(t, newStore(t)) })
	t.Run("QueryHistoryNewestFirst", func(t *testing.T) { testQueryHistoryNewestFirst(t, newStore(t)) })
	t.Run("IngestShowWritesShowAndPlays", func(t *testing.T) { testIngestShow(t, newStore(t)) })
	t.Run("IngestShowCanceledWritesNothing", func(t *testing.T) { testIngestShowCanceled(t, newStore(t)) })
	t.Run("ConcurrentInsertsKeepOneRow", func(t *testing.T) { testConcurrentInserts(t, newStore(t)) })
}

var base = time.Date(2026, 1, 21, 8, 0, 0, 0, time.UTC)

func testSaveShowIsIdempotent(t *testing.T, s playlist.Store) {
	ctx := context.Background()
	show := playlist.Show{
		URL:        "https://spinitron.com/WUOG/pl/100",
		TargetName: "Automation",
		Title:      "Automation",
		Presenter:  "Robo",
		DateText:   "Jan 5 2026",
		TimeText:   "2:00 AM",
		IngestedAt: base,
	}

	exists, err := s.ShowExists(ctx, show.URL)
	require.NoError(t, err)
	require.False(t, exists)

	created, err := s.SaveShow(ctx, show)
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.SaveShow(ctx, show)
	require.NoError(t, err)
	require.False(t, created)

	exists, err = s.ShowExists(ctx, show.URL)
	require.NoError(t, err)
	require.True(t, exists)

	count, err := s.CountShows(ctx, "Automation")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func testSavePlayEventsSkipsDuplicates(t *testing.T, s playlist.Store) {
	ctx := context.Background()
	url := "https://spinitron.com/WUOG/pl/101"
	_, err := s.SaveShow(ctx, playlist.Show{URL: url, TargetName: "Automation", IngestedAt: base})
	require.NoError(t, err)

	events := []playlist.PlayEvent{
		{Artist: "Artist A", Song: "Song X", Album: "First", IngestedAt: base},
		{Artist: "Artist A", Song: "Song X", Album: "Second", IngestedAt: base},
		{Artist: "Artist B", Song: "Song Y", Album: playlist.AlbumUnknown, IngestedAt: base},
	}
	n, err := s.SavePlayEvents(ctx, url, events)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = s.SavePlayEvents(ctx, url, events)
	require.NoError(t, err)
	require.Zero(t, n)

	rows, err := s.QueryHistory(ctx, "Automation")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func testIngestShow(t *testing.T, s playlist.Store) {
	ctx := context.Background()
	show := playlist.Show{URL: "https://spinitron.com/WUOG/pl/102", TargetName: "Automation", DateText: "Jan 6 2026", TimeText: "2:00 AM", IngestedAt: base}
	events := []playlist.PlayEvent{
		{Artist: "Artist A", Song: "Song X", Album: "LP", IngestedAt: base},
		{Artist: "Artist A", Song: "Song X", Album: "LP", IngestedAt: base},
		{Artist: "Artist B", Song: "Song Y", Album: playlist.AlbumUnknown, IngestedAt: base},
	}

	created, n, err := s.IngestShow(ctx, show, events)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 2, n)

	created, n, err = s.IngestShow(ctx, show, events)
	require.NoError(t, err)
	require.False(t, created)
	require.Zero(t, n)

	count, err := s.CountShows(ctx, "Automation")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rows, err := s.QueryHistory(ctx, "Automation")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Jan 6 2026", rows[0].DateText)
}

func testIngestShowCanceled(t *testing.T, s playlist.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	show := playlist.Show{URL: "https://spinitron.com/WUOG/pl/103", TargetName: "Automation", IngestedAt: base}

	_, _, err := s.IngestShow(ctx, show, []playlist.PlayEvent{
		{Artist: "Artist A", Song: "Song X", Album: "LP", IngestedAt: base},
	})
	require.Error(t, err)

	exists, err := s.ShowExists(context.Background(), show.URL)
	require.NoError(t, err)
	require.False(t, exists)

	rows, err := s.QueryHistory(context.Background(), "Automation")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func testQueryHistoryNewestFirst(t *testing.T, s playlist.Store) {
	ctx := context.Background()
	shows := []playlist.Show{
		{URL: "s1", TargetName: "Automation", DateText: "Jan 5 2026", TimeText: "2:00 AM", IngestedAt: base},
		{URL: "s2", TargetName: "Automation", DateText: "Jan 20 2026", TimeText: "2:00 AM", IngestedAt: base.Add(time.Hour)},
		{URL: "s3", TargetName: "Other", DateText: "Jan 21 2026", TimeText: "9:00 PM", IngestedAt: base.Add(2 * time.Hour)},
	}
	for _, show := range shows {
		_, err := s.SaveShow(ctx, show)
		require.NoError(t, err)
	}

	_, err := s.SavePlayEvents(ctx, "s1", []playlist.PlayEvent{
		{Artist: "Artist A", Song: "Song X", Album: "LP", IngestedAt: base},
	})
	require.NoError(t, err)
	_, err = s.SavePlayEvents(ctx, "s2", []playlist.PlayEvent{
		{Artist: "Artist A", Song: "Song X", Album: "LP", IngestedAt: base.Add(time.Hour)},
		{Artist: "Artist C", Song: "Song Z", Album: "EP", IngestedAt: base.Add(time.Hour)},
	})
	require.NoError(t, err)
	_, err = s.SavePlayEvents(ctx, "s3", []playlist.PlayEvent{
		{Artist: "Artist D", Song: "Song W", Album: "N/A", IngestedAt: base.Add(2 * time.Hour)},
	})
	require.NoError(t, err)

	rows, err := s.QueryHistory(ctx, "Automation")
	require.NoError(t, err)
	require.Equal(t, []playlist.HistoryRow{
		{Artist: "Artist C", Song: "Song Z", Album: "EP", DateText: "Jan 20 2026", TimeText: "2:00 AM"},
		{Artist: "Artist A", Song: "Song X", Album: "LP", DateText: "Jan 20 2026", TimeText: "2:00 AM"},
		{Artist: "Artist A", Song: "Song X", Album: "LP", DateText: "Jan 5 2026", TimeText: "2:00 AM"},
	}, rows)

	empty, err := s.QueryHistory(ctx, "Nobody")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func testConcurrentInserts(t *testing.T, s playlist.Store) {
	ctx := context.Background()
	show := playlist.Show{URL: "race", TargetName: "Automation", IngestedAt: base}
	events := make([]playlist.PlayEvent, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, playlist.PlayEvent{
			Artist:     fmt.Sprintf("Artist %d", i),
			Song:       "Song",
			Album:      playlist.AlbumUnknown,
			IngestedAt: base,
		})
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		plays   int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SaveShow(ctx, show)
			var n int
			if err == nil {
				n, err = s.SavePlayEvents(ctx, show.URL, events)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				created++
			}
			plays += n
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, 1, created)
	require.Equal(t, len(events), plays)

	rows, err := s.QueryHistory(ctx, "Automation")
	require.NoError(t, err)
	require.Len(t, rows, len(events))
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestSaveShowReportsWasNew(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1767225600, 0).UTC()
	show := playlist.Show{
		URL:        "https://spinitron.com/WUOG/pl/1",
		TargetName: "Automation",
		Title:      "Automation",
		Presenter:  "DJ",
		DateText:   "Jan 5 2026",
		TimeText:   "2:00 AM",
		IngestedAt: now,
	}

	mock.ExpectExec("INSERT INTO shows").
		WithArgs(show.URL, show.TargetName, show.Title, show.Presenter, show.DateText, show.TimeText, show.IngestedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO shows").
		WithArgs(show.URL, show.TargetName, show.Title, show.Presenter, show.DateText, show.TimeText, show.IngestedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := store.SaveShow(context.Background(), show)
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.SaveShow(context.Background(), show)
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShowExists(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://example.com/pl/1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.ShowExists(context.Background(), "https://example.com/pl/1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePlayEventsCountsOnlyNewRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1767225600, 0).UTC()
	url := "https://example.com/pl/1"
	events := []playlist.PlayEvent{
		{Artist: "A", Song: "X", Album: "One", IngestedAt: now},
		{Artist: "A", Song: "X", Album: "One", IngestedAt: now},
		{Artist: "B", Song: "Y", Album: playlist.AlbumUnknown, IngestedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO play_events").
		WithArgs(url, "A", "X", "One", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO play_events").
		WithArgs(url, "A", "X", "One", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO play_events").
		WithArgs(url, "B", "Y", playlist.AlbumUnknown, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := store.SavePlayEvents(context.Background(), url, events)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePlayEventsRollsBackOnIOError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1767225600, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO play_events").
		WithArgs("u", "A", "X", "N/A", now).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.SavePlayEvents(context.Background(), "u", []playlist.PlayEvent{
		{Artist: "A", Song: "X", Album: "N/A", IngestedAt: now},
	})
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestShowCommitsShowAndPlaysTogether(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1767225600, 0).UTC()
	show := playlist.Show{URL: "u", TargetName: "Automation", IngestedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO shows").
		WithArgs(show.URL, show.TargetName, show.Title, show.Presenter, show.DateText, show.TimeText, show.IngestedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO play_events").
		WithArgs("u", "A", "X", "N/A", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, n, err := store.IngestShow(context.Background(), show, []playlist.PlayEvent{
		{Artist: "A", Song: "X", Album: "N/A", IngestedAt: now},
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestShowRollsBackShowWhenPlaysFail(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1767225600, 0).UTC()
	show := playlist.Show{URL: "u", TargetName: "Automation", IngestedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO shows").
		WithArgs(show.URL, show.TargetName, show.Title, show.Presenter, show.DateText, show.TimeText, show.IngestedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO play_events").
		WithArgs("u", "A", "X", "N/A", now).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	created, n, err := store.IngestShow(context.Background(), show, []playlist.PlayEvent{
		{Artist: "A", Song: "X", Album: "N/A", IngestedAt: now},
	})
	require.ErrorContains(t, err, "connection reset")
	require.False(t, created)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePlayEventsEmptyBatchSkipsDatabase(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	n, err := store.SavePlayEvents(context.Background(), "u", nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryHistoryScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT pe.artist").
		WithArgs("Automation").
		WillReturnRows(pgxmock.NewRows([]string{"artist", "song", "album", "date_str", "time_str"}).
			AddRow("A", "X", "One", "Jan 20 2026", "2:00 AM").
			AddRow("A", "X", "One", "Jan 5 2026", "2:00 AM"))

	rows, err := store.QueryHistory(context.Background(), "Automation")
	require.NoError(t, err)
	require.Equal(t, []playlist.HistoryRow{
		{Artist: "A", Song: "X", Album: "One", DateText: "Jan 20 2026", TimeText: "2:00 AM"},
		{Artist: "A", Song: "X", Album: "One", DateText: "Jan 5 2026", TimeText: "2:00 AM"},
	}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryHistoryPropagatesErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT pe.artist").
		WithArgs("Automation").
		WillReturnError(errors.New("db down"))

	_, err := store.QueryHistory(context.Background(), "Automation")
	require.ErrorContains(t, err, "db down")
}

func TestMigrateAndCount(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS shows").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("Automation").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, store.Migrate(context.Background()))
	n, err := store.CountShows(context.Background(), "Automation")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

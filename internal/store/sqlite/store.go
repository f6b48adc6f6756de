// Package sqlite provides a single-file playlist store backed by SQLite through GORM.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

type showRecord struct {
	URL        string    `gorm:"column:url;primaryKey"`
	TargetName string    `gorm:"column:target_name;index;not null"`
	ShowTitle  string    `gorm:"column:show_title"`
	DJName     string    `gorm:"column:dj_name"`
	DateStr    string    `gorm:"column:date_str"`
	TimeStr    string    `gorm:"column:time_str"`
	IngestedAt time.Time `gorm:"column:ingested_at;not null"`
}

func (showRecord) TableName() string { return "shows" }

type playRecord struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	ShowURL    string    `gorm:"column:show_url;not null;uniqueIndex:idx_play_events_key"`
	Artist     string    `gorm:"column:artist;not null;uniqueIndex:idx_play_events_key"`
	Song       string    `gorm:"column:song;not null;uniqueIndex:idx_play_events_key"`
	Album      string    `gorm:"column:album"`
	IngestedAt time.Time `gorm:"column:ingested_at;not null;index"`
}

func (playRecord) TableName() string { return "play_events" }

type historyRecord struct {
	Artist  string `gorm:"column:artist"`
	Song    string `gorm:"column:song"`
	Album   string `gorm:"column:album"`
	DateStr string `gorm:"column:date_str"`
	TimeStr string `gorm:"column:time_str"`
}

// Store implements playlist.Store on a SQLite database file.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store.path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&showRecord{}, &playRecord{}); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// ShowExists looks up a show by URL.
func (s *Store) ShowExists(ctx context.Context, url string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&showRecord{}).Where("url = ?", url).Limit(1).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("query show %s: %w", url, err)
	}
	return count > 0, nil
}

// SaveShow inserts the show unless its URL is already stored.
func (s *Store) SaveShow(ctx context.Context, show playlist.Show) (bool, error) {
	return createShow(s.db.WithContext(ctx), show)
}

// SavePlayEvents inserts the plays in one transaction and counts the new rows.
func (s *Store) SavePlayEvents(ctx context.Context, showURL string, events []playlist.PlayEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := createPlays(tx, showURL, events)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// IngestShow inserts the show and its plays in a single transaction.
func (s *Store) IngestShow(ctx context.Context, show playlist.Show, events []playlist.PlayEvent) (bool, int, error) {
	var (
		created  bool
		inserted int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if created, err = createShow(tx, show); err != nil {
			return err
		}
		inserted, err = createPlays(tx, show.URL, events)
		return err
	})
	if err != nil {
		return false, 0, err
	}
	return created, inserted, nil
}

func createShow(db *gorm.DB, show playlist.Show) (bool, error) {
	rec := showRecord{
		URL:        show.URL,
		TargetName: show.TargetName,
		ShowTitle:  show.Title,
		DJName:     show.Presenter,
		DateStr:    show.DateText,
		TimeStr:    show.TimeText,
		IngestedAt: show.IngestedAt.UTC(),
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("insert show %s: %w", show.URL, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func createPlays(db *gorm.DB, showURL string, events []playlist.PlayEvent) (int, error) {
	inserted := 0
	for _, ev := range events {
		rec := playRecord{
			ShowURL:    showURL,
			Artist:     ev.Artist,
			Song:       ev.Song,
			Album:      ev.Album,
			IngestedAt: ev.IngestedAt.UTC(),
		}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			return 0, fmt.Errorf("insert plays for %s: %w", showURL, res.Error)
		}
		inserted += int(res.RowsAffected)
	}
	return inserted, nil
}

// QueryHistory returns the target's plays, most recently ingested first.
func (s *Store) QueryHistory(ctx context.Context, targetName string) ([]playlist.HistoryRow, error) {
	var recs []historyRecord
	err := s.db.WithContext(ctx).
		Table("play_events AS pe").
		Select("pe.artist, pe.song, pe.album, s.date_str, s.time_str").
		Joins("JOIN shows s ON s.url = pe.show_url").
		Where("s.target_name = ?", targetName).
		Order("pe.ingested_at DESC, pe.id DESC").
		Scan(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", targetName, err)
	}
	rows := make([]playlist.HistoryRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, playlist.HistoryRow{
			Artist:   r.Artist,
			Song:     r.Song,
			Album:    r.Album,
			DateText: r.DateStr,
			TimeText: r.TimeStr,
		})
	}
	return rows, nil
}

// CountShows returns how many shows are stored for the target.
func (s *Store) CountShows(ctx context.Context, targetName string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&showRecord{}).Where("target_name = ?", targetName).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count shows for %s: %w", targetName, err)
	}
	return int(count), nil
}

// Package badger provides an embedded, directory-backed playlist store using BadgerDB.
//
// Keys are laid out as:
//
//	show:<url>                                  -> show JSON
//	play:<url>\x00<artist>\x00<song>            -> empty marker
//	hist:<target>\x00<^ingested><^seq>          -> history row JSON
//	target:<target>\x00<url>                    -> empty marker
//
// History keys invert the timestamp and sequence so a forward prefix scan
// yields the most recently ingested plays first.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

const (
	showPrefix   = "show:"
	playPrefix   = "play:"
	histPrefix   = "hist:"
	targetPrefix = "target:"
	seqKey       = "seq:plays"

	seqBandwidth       = 128
	maxConflictRetries = 32
)

// ErrUnknownShow is returned when plays are saved for a show that is not stored.
var ErrUnknownShow = errors.New("show is not stored")

type showValue struct {
	URL        string `json:"url"`
	TargetName string `json:"target_name"`
	Title      string `json:"show_title"`
	Presenter  string `json:"dj_name"`
	DateText   string `json:"date_str"`
	TimeText   string `json:"time_str"`
	IngestedAt int64  `json:"ingested_at"`
}

type historyValue struct {
	Artist   string `json:"artist"`
	Song     string `json:"song"`
	Album    string `json:"album"`
	DateText string `json:"date_str"`
	TimeText string `json:"time_str"`
}

// Store implements playlist.Store on BadgerDB.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Open opens (creating if needed) a Badger database in dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store.path is required")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	seq, err := db.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open play sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close badger: %w", err))
	}
	return errors.Join(errs...)
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("badger is closed")
	}
	return nil
}

// ShowExists looks up a show by URL.
func (s *Store) ShowExists(_ context.Context, url string) (bool, error) {
	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(showPrefix + url))
		switch {
		case err == nil:
			exists = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, fmt.Errorf("get show %s: %w", url, err)
	}
	return exists, nil
}

// SaveShow writes the show unless its URL is already stored. Concurrent
// writers of the same URL conflict at commit; the retry then sees the row.
func (s *Store) SaveShow(_ context.Context, show playlist.Show) (bool, error) {
	data, err := encodeShow(show)
	if err != nil {
		return false, err
	}
	var created bool
	err = s.update(func(txn *badger.Txn) error {
		var err error
		created, err = putShow(txn, show, data)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("save show %s: %w", show.URL, err)
	}
	return created, nil
}

// SavePlayEvents inserts plays whose key is new, all in one transaction.
func (s *Store) SavePlayEvents(_ context.Context, showURL string, events []playlist.PlayEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	var inserted int
	err := s.update(func(txn *badger.Txn) error {
		var err error
		inserted, err = s.putPlays(txn, showURL, events)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("save plays for %s: %w", showURL, err)
	}
	return inserted, nil
}

// IngestShow writes the show and its plays in one transaction.
func (s *Store) IngestShow(ctx context.Context, show playlist.Show, events []playlist.PlayEvent) (bool, int, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	data, err := encodeShow(show)
	if err != nil {
		return false, 0, err
	}
	var (
		created  bool
		inserted int
	)
	err = s.update(func(txn *badger.Txn) error {
		var err error
		if created, err = putShow(txn, show, data); err != nil {
			return err
		}
		inserted, err = s.putPlays(txn, show.URL, events)
		return err
	})
	if err != nil {
		return false, 0, fmt.Errorf("ingest show %s: %w", show.URL, err)
	}
	return created, inserted, nil
}

func encodeShow(show playlist.Show) ([]byte, error) {
	data, err := json.Marshal(showValue{
		URL:        show.URL,
		TargetName: show.TargetName,
		Title:      show.Title,
		Presenter:  show.Presenter,
		DateText:   show.DateText,
		TimeText:   show.TimeText,
		IngestedAt: show.IngestedAt.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal show: %w", err)
	}
	return data, nil
}

func putShow(txn *badger.Txn, show playlist.Show, data []byte) (bool, error) {
	key := []byte(showPrefix + show.URL)
	found, err := has(txn, key)
	if err != nil || found {
		return false, err
	}
	if err := txn.Set(key, data); err != nil {
		return false, fmt.Errorf("set show: %w", err)
	}
	if err := txn.Set(targetKey(show.TargetName, show.URL), nil); err != nil {
		return false, fmt.Errorf("set target index: %w", err)
	}
	return true, nil
}

// putPlays reads the show back through txn, so a show set earlier in the
// same transaction is visible.
func (s *Store) putPlays(txn *badger.Txn, showURL string, events []playlist.PlayEvent) (int, error) {
	show, err := getShow(txn, showURL)
	if err != nil {
		return 0, err
	}
	inserted := 0
	for _, ev := range events {
		ev.ShowURL = showURL
		key := []byte(playPrefix + ev.Key())
		found, err := has(txn, key)
		if err != nil {
			return 0, err
		}
		if found {
			continue
		}
		seq, err := s.seq.Next()
		if err != nil {
			return 0, fmt.Errorf("next sequence: %w", err)
		}
		row, err := json.Marshal(historyValue{
			Artist:   ev.Artist,
			Song:     ev.Song,
			Album:    ev.Album,
			DateText: show.DateText,
			TimeText: show.TimeText,
		})
		if err != nil {
			return 0, fmt.Errorf("marshal history row: %w", err)
		}
		if err := txn.Set(key, nil); err != nil {
			return 0, fmt.Errorf("set play: %w", err)
		}
		if err := txn.Set(historyKey(show.TargetName, ev.IngestedAt.UnixNano(), seq), row); err != nil {
			return 0, fmt.Errorf("set history: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// QueryHistory scans the target's history index, newest first.
func (s *Store) QueryHistory(_ context.Context, targetName string) ([]playlist.HistoryRow, error) {
	var rows []playlist.HistoryRow
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(histPrefix + targetName + "\x00")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var v historyValue
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return fmt.Errorf("decode history row: %w", err)
			}
			rows = append(rows, playlist.HistoryRow(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", targetName, err)
	}
	return rows, nil
}

// CountShows counts the target's index keys.
func (s *Store) CountShows(_ context.Context, targetName string) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(targetPrefix + targetName + "\x00")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count shows for %s: %w", targetName, err)
	}
	return n, nil
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func has(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("get %q: %w", key, err)
	}
}

func getShow(txn *badger.Txn, url string) (showValue, error) {
	var show showValue
	item, err := txn.Get([]byte(showPrefix + url))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return show, fmt.Errorf("%w: %s", ErrUnknownShow, url)
	}
	if err != nil {
		return show, fmt.Errorf("get show: %w", err)
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &show)
	}); err != nil {
		return show, fmt.Errorf("decode show: %w", err)
	}
	return show, nil
}

func targetKey(target, url string) []byte {
	return []byte(targetPrefix + target + "\x00" + url)
}

func historyKey(target string, ingestedNanos int64, seq uint64) []byte {
	prefix := histPrefix + target + "\x00"
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], ^uint64(ingestedNanos))
	binary.BigEndian.PutUint64(key[len(prefix)+8:], ^seq)
	return key
}

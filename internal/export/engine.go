// Package export turns stored play history into bucketed CSV snapshots.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/radio-playlist-archiver/internal/metrics"
	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

const contentType = "text/csv; charset=utf-8"

var header = []string{"Artist", "Song", "Album", "Date_Played", "Time_Played"}

// HistoryReader is the slice of the store the engine depends on.
type HistoryReader interface {
	QueryHistory(ctx context.Context, targetName string) ([]playlist.HistoryRow, error)
}

// Config controls Engine behavior.
type Config struct {
	// Topic receives a SnapshotExported message per written bucket. Empty disables publishing.
	Topic string
}

// SnapshotExported is published after a bucket file has been written.
type SnapshotExported struct {
	Target     string    `json:"target"`
	Bucket     string    `json:"bucket"`
	URI        string    `json:"uri"`
	Rows       int       `json:"rows"`
	SHA256     string    `json:"sha256"`
	ExportedAt time.Time `json:"exported_at"`
}

// Report summarizes one export of a target.
type Report struct {
	Target         string
	Skipped        bool
	HistoryRows    int
	BucketsWritten int
	BucketsFailed  int
	Files          []string
}

// Engine writes one deduplicated CSV per bucket of a target's history.
type Engine struct {
	history   HistoryReader
	sink      playlist.SnapshotSink
	publisher playlist.Publisher
	hasher    playlist.Hasher
	clock     playlist.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Engine. publisher and hasher may be nil.
func New(
	history HistoryReader,
	sink playlist.SnapshotSink,
	publisher playlist.Publisher,
	hasher playlist.Hasher,
	clock playlist.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		history:   history,
		sink:      sink,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("export"),
	}
}

// Export regenerates every snapshot file of the target. Individual bucket
// failures are logged and counted; the only returned error is a failed
// history read.
func (e *Engine) Export(ctx context.Context, target playlist.Target) (Report, error) {
	report := Report{Target: target.Name}
	if target.Consolidation == playlist.ConsolidationNone {
		report.Skipped = true
		metrics.ObserveExport(target.Name, "skipped")
		return report, nil
	}

	rows, err := e.history.QueryHistory(ctx, target.Name)
	if err != nil {
		metrics.ObserveExport(target.Name, "failed")
		return report, fmt.Errorf("query history for %s: %w", target.Name, err)
	}
	report.HistoryRows = len(rows)

	buckets := Partition(target, rows)
	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		uri, err := e.writeBucket(ctx, target, key, buckets[key])
		if err != nil {
			report.BucketsFailed++
			metrics.ObserveBucketWrite(target.Name, key, "failed", 0)
			e.logger.Error("bucket write failed",
				zap.String("target", target.Name),
				zap.String("bucket", key),
				zap.Error(err),
			)
			continue
		}
		report.BucketsWritten++
		report.Files = append(report.Files, uri)
		metrics.ObserveBucketWrite(target.Name, key, "written", len(buckets[key]))
	}

	status := "succeeded"
	if report.BucketsFailed > 0 {
		status = "partial"
	}
	metrics.ObserveExport(target.Name, status)
	e.logger.Info("export finished",
		zap.String("target", target.Name),
		zap.Int("history_rows", report.HistoryRows),
		zap.Int("buckets_written", report.BucketsWritten),
		zap.Int("buckets_failed", report.BucketsFailed),
	)
	return report, nil
}

// Partition groups history rows by bucket key, keeping the first row of each
// case-insensitive (artist, song) pair. Rows arrive newest first, so the most
// recent play of a song wins.
func Partition(target playlist.Target, rows []playlist.HistoryRow) map[string][]playlist.HistoryRow {
	filtered := target.TimeFilter != nil
	buckets := make(map[string][]playlist.HistoryRow)
	seen := make(map[string]map[string]struct{})
	for _, row := range rows {
		key := Classify(target, row).Key(filtered)
		songs, ok := seen[key]
		if !ok {
			songs = make(map[string]struct{})
			seen[key] = songs
		}
		dedup := dedupKey(row)
		if _, dup := songs[dedup]; dup {
			continue
		}
		songs[dedup] = struct{}{}
		buckets[key] = append(buckets[key], row)
	}
	return buckets
}

// FileName is the snapshot path of a bucket: {export_folder}/{slug}_{key}.csv.
// The local sink writes it exactly as given; object sinks use it as a key.
func FileName(target playlist.Target, bucketKey string) string {
	return path.Join(target.ExportFolder, target.FileSlug()+"_"+bucketKey+".csv")
}

func dedupKey(row playlist.HistoryRow) string {
	return strings.ToLower(strings.TrimSpace(row.Artist)) + "\x00" + strings.ToLower(strings.TrimSpace(row.Song))
}

func (e *Engine) writeBucket(
	ctx context.Context,
	target playlist.Target,
	key string,
	rows []playlist.HistoryRow,
) (string, error) {
	data, err := encodeCSV(rows)
	if err != nil {
		return "", err
	}
	uri, err := e.sink.PutObject(ctx, FileName(target, key), contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put snapshot: %w", err)
	}
	e.logger.Debug("bucket written",
		zap.String("target", target.Name),
		zap.String("bucket", key),
		zap.String("uri", uri),
		zap.Int("rows", len(rows)),
	)
	e.announce(ctx, target, key, uri, len(rows), data)
	return uri, nil
}

func (e *Engine) announce(ctx context.Context, target playlist.Target, key, uri string, rows int, data []byte) {
	if e.cfg.Topic == "" || e.publisher == nil {
		return
	}
	msg := SnapshotExported{
		Target: target.Name,
		Bucket: key,
		URI:    uri,
		Rows:   rows,
	}
	if e.clock != nil {
		msg.ExportedAt = e.clock.Now()
	}
	if e.hasher != nil {
		digest, err := e.hasher.Hash(data)
		if err != nil {
			e.logger.Warn("hash snapshot failed", zap.String("bucket", key), zap.Error(err))
		}
		msg.SHA256 = digest
	}
	if _, err := e.publisher.Publish(ctx, e.cfg.Topic, msg); err != nil {
		e.logger.Warn("publish snapshot notification failed",
			zap.String("target", target.Name),
			zap.String("bucket", key),
			zap.Error(err),
		)
	}
}

func encodeCSV(rows []playlist.HistoryRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write([]string{row.Artist, row.Song, row.Album, row.DateText, row.TimeText}); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

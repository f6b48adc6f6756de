// Package main hosts the playlist archiver entrypoint.
//
// Architecture overview:
//   - Source: internal/source/spinitron scrapes station listing pages and show pages with Colly. A gobreaker
//     circuit breaker stops hammering a site that keeps failing.
//   - Crawl: internal/crawl walks listing pages for one target, skips shows that are already stored, and saves new
//     shows with their plays. Network fetches are paced per host by internal/policy/ratelimit.
//   - Store: postgres (pgx), sqlite (gorm), badger, or memory, selected by store.driver. Every backend enforces
//     show URL and play event uniqueness so repeated crawls never duplicate rows.
//   - Export: internal/export rebuilds per-bucket CSV snapshots from the full history after every crawl that found
//     new shows and writes them to the local filesystem, GCS, or memory. Each written file can be announced on
//     Pub/Sub.
//   - Scheduling: internal/runner runs a cycle at startup, then once per polling interval, and whenever the ops API
//     queues a backfill. Only one cycle is pending at a time.
//   - Ops API: internal/api serves health probes, Prometheus metrics, task status, backfill submission, and the
//     exported files.
//
// Usage:
//   - Run the service: go run ./cmd/playlistcrawler -config config.yaml
//   - One cycle and exit: go run ./cmd/playlistcrawler -config config.yaml -once
//   - Backfill 50 pages of one target: go run ./cmd/playlistcrawler -config config.yaml -backfill 50 -target WUOG
//   - Environment overrides use the PLAYLIST_ prefix, for example PLAYLIST_STORE_DRIVER=badger. A .env file in
//     the working directory is loaded first when present.
package main

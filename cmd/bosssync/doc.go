// Package main hosts the boss sync service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, boss lookup,
//     and admin sync endpoints. Boss records are served straight from the
//     repository; the admin trigger runs the pipeline synchronously and
//     returns its run summary.
//   - Sync pipeline: internal/pipeline lists the configured wiki category,
//     fetches and extracts each page under a bounded worker pool, resolves
//     boss images in batches, and upserts records keyed by slug. Per-item
//     failures land in the dead letter log and never abort a run.
//   - Locking: a singleton lock row (Postgres, or in-memory in dev) makes
//     concurrent runs impossible across process instances. A held lock turns
//     a run into a recorded skip.
//   - Persistence & fanout: boss documents live in Postgres as JSONB. Raw
//     page markup is optionally archived to a BlobStore (local/GCS), and a
//     compact run summary is published to Pub/Sub when a topic is configured.
//   - Configuration & plumbing: Viper populates config from env/files (env
//     prefix BOSSSYNC); zap provides structured logging; Prometheus metrics
//     are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: bounded fetch workers inside a single run; at most
//     one run at a time service-wide, enforced by the sync lock. Shutdown is
//     coordinated via context cancellation from main.
//   - Rate limiting/backoff: all wiki API calls pass a client-side rate
//     limiter; HTTP 429 responses retry with doubling backoff before the
//     page is dead-lettered.
//   - Observability: zap logs carry page titles and run counters at key
//     transitions; Prometheus counters/histograms track API and sync
//     activity.
//
// Quick checklist:
//   - Configure env vars: BOSSSYNC_SERVER_PORT, BOSSSYNC_DB_DSN,
//     BOSSSYNC_WIKI_BASE_URL, BOSSSYNC_SYNC_CATEGORY, storage
//     (BOSSSYNC_STORAGE_*), pubsub, and BOSSSYNC_SCHEDULE_ENABLED for
//     periodic runs.
//   - Run locally: go run ./cmd/bosssync -config config.yaml (or rely
//     solely on env overrides; without a DSN the service runs fully
//     in-memory).
package main

// Package state persists the small set of client-visible session markers
// that survive process restarts: the authenticated flag, the time of the
// last credential refresh, and the time of the last user activity.
//
// Two implementations ship with the module: [MemoryStore], a process-local
// map suitable for tests and single-process embedding, and [RedisStore] for
// deployments where several processes share one session view.
//
// # What this package must NOT do
//
//   - Interpret marker values (freshness policy lives in the lifecycle
//     manager).
//   - Cache across calls; every read hits the backing store.
package state

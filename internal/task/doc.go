// Package task manages background job queuing, processing, and lifecycle.
// It provides mechanisms for asynchronous execution of queued calculations,
// applying exponential-backoff retries on transient failures and recovering
// interrupted work after application restarts. Workers claim tasks in
// submission order and only while the processor is marked online.
package task

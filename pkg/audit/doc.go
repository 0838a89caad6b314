// Package audit maintains the append-only trail of decisions and
// administrative events. Writes are bounded so the decision path never
// stalls on the sink; failed writes are retried in the background.
package audit

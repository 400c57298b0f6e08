// Package breaker guards an outbox.Publisher with a circuit breaker so a
// broker outage fails the remaining publishes of a cycle fast instead of
// waiting out a timeout per record.
package breaker

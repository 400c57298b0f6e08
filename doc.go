// Package outbox implements a transactional outbox: domain occurrences are
// recorded in the same transaction as the business mutation that raised them
// and later forwarded to a message broker with at-least-once delivery.
//
// Typical flow:
//  1. Aggregates raise occurrences through an embedded Recorder.
//  2. A UnitOfWork runs the mutation, captures every tracked aggregate's
//     occurrences as pending records in the same transaction and commits.
//  3. Occurrences captured before the store assigned the aggregate's
//     identifier are patched in a separate transaction after commit.
//  4. A Dispatcher polls pending records in creation order, decodes them
//     through a Registry, publishes them and marks successes delivered.
//
// Failed records stay pending and are retried on the next cycle. Consumers
// must tolerate duplicates keyed by the record ID.
//
// Storage backends live in the mysql and postgres packages; broker adapters
// live in the rabbitmq, kafka and redis packages.
package outbox

// Package redis provides a Redis Streams publisher for outbox messages and a
// redsync based cycle lock that keeps dispatchers on several instances from
// working the same batch at the same time.
package redis

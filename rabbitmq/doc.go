// Package rabbitmq publishes outbox messages to a RabbitMQ topic exchange.
//
// The publisher puts its channel in confirm mode and waits for the broker to
// acknowledge every message before reporting success to the dispatcher. A
// nack, a confirm timeout or a closed channel is returned as a transient
// failure so the record stays pending and is retried on a later cycle.
package rabbitmq

package rabbitmq

import "errors"

var (
	// ErrChannelRequired indicates a nil channel was provided.
	ErrChannelRequired = errors.New("outbox rabbitmq: channel is required")
	// ErrConfirmModeUnavailable indicates the channel rejected confirm mode.
	ErrConfirmModeUnavailable = errors.New("outbox rabbitmq: channel does not support confirm mode")
	// ErrPublishNacked indicates the broker refused the message.
	ErrPublishNacked = errors.New("outbox rabbitmq: message was nacked by broker")
	// ErrConfirmTimeout indicates no confirmation arrived in time.
	ErrConfirmTimeout = errors.New("outbox rabbitmq: confirmation timed out")
	// ErrPublisherClosed indicates the confirmation stream was closed.
	ErrPublisherClosed = errors.New("outbox rabbitmq: publisher is closed")
)

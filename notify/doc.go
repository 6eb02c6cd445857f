// Package notify delivers one-time codes to users.
//
// AMQPNotifier publishes a JSON message per code to a RabbitMQ topic
// exchange, leaving rendering and SMTP to a mail worker. LogNotifier writes
// deliveries to a slog logger for development setups with no broker.
package notify

// Package redisaudit ships audit events to a Redis stream. Streams give
// the trail durable append-only semantics and let downstream consumers
// (SIEM forwarders, compliance archiving) read with consumer groups at
// their own pace. The sink satisfies audit.Sink and is typically wrapped
// in audit.AsyncSink to keep the mutation path off the network.
package redisaudit

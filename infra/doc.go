// Package infra contains technical adapters such as the SQLite, Postgres and
// Redis stores, the MQTT notification relay and metrics exporters. These
// packages should depend only on the interfaces defined in the core packages.
package infra

/*
Package ports defines the driven ports (interfaces) of the settle engine.

These interfaces decouple the debounce core from external implementations, allowing
the engine to run against Redis, DynamoDB, Postgres or memory without changes.

# Key Interfaces

  - ConversationStore: exists, list-all, list-append, set-with-expiry and delete.
  - Drainer: optional atomic read-and-clear of a list.
  - Connector / Conn: per-activation store handles, released on every exit path.
  - DistributedLocker: distributed locking for drivers that serialize a conversation.
  - Engine: what drivers call to process activations.
*/
package ports

/*
Package domain contains the core types of the settle debounce engine.

It defines what an activation carries, how conversation keys map to store keys, and
what an activation can produce. This package is kept pure and free of I/O so every
adapter and driver can share it.

# Key Entities

  - ConversationKey: groups the events consolidated together; derives the buffer
    key (msg:<key>) and the timer key (timer:<key>).
  - Settings: per-activation configuration (message field, output fields, window).
  - Envelope: the opaque record passed through the engine, including the polling flag.
  - Activation: one unit of work handed to the engine.
  - Outcome: the routing decision (ready, wait or discarded) and the emitted record.
  - Error: configuration and store failures, matched with errors.Is against
    ErrConfiguration and ErrStoreFailure.
*/
package domain

/*
Package session serializes activations that share a conversation key.

Same-key activations are allowed to overlap by default. A Guard narrows that: in
one process it holds a reference-counted mutex per key, and with a
ports.DistributedLocker it also holds a lock shared by every replica. Drivers
wrap Engine.Process in Guard.Do when a deployment wants poll checks and raw
messages of one conversation to run one at a time.
*/
package session

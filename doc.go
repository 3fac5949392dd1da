/*
Package settle is a store-backed debounce engine that consolidates bursts of
short messages into one.

Chat users often split one thought across several messages. Settle buffers every
message of a conversation in an external keyed store and emits a single
consolidated record once the conversation has been quiet for a configured window.

# Concept

The engine is stateless between activations. Each activation is either a raw
message or a poll check, and is classified onto one of three channels:

  - wait: a message was buffered, or the window is still open. The driver must
    feed the envelope back (it carries the polling flag) after a delay.
  - ready: the window elapsed. The envelope carries the consolidated text and the
    ordered list of raw messages.
  - discarded: the message was blank, or the window elapsed with nothing buffered.

All coordination lives in the store: a list at "msg:<key>" and an expiring marker
at "timer:<key>". Any number of replicas can share one store.

# Usage

	package main

	import (
		"context"
		"log"
		"time"

		"github.com/aretw0/settle"
		"github.com/aretw0/settle/pkg/adapters/redis"
		"github.com/aretw0/settle/pkg/domain"
	)

	func main() {
		connector := redis.NewConnector(redis.Config{Host: "localhost"})
		eng, err := settle.New(connector)
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		settings := domain.Settings{ConversationKey: "user-1", MessageField: "text"}

		out, err := eng.Process(ctx, domain.NewActivation(settings, domain.Envelope{"text": "hi"}))
		if err != nil {
			log.Fatal(err)
		}

		// Poll until the conversation settles.
		for out.Classification == domain.Wait {
			time.Sleep(time.Second)
			if out, err = eng.Process(ctx, domain.NewActivation(settings, out.Payload)); err != nil {
				log.Fatal(err)
			}
		}
		log.Println(out.Payload[domain.DefaultOutputField])
	}

The pkg/runner package implements this loop with bounded concurrency.
*/
package settle

package amqp

import (
	xlog "go.bryk.io/tacoq/log"
	"gopkg.in/yaml.v3"
)

func ExampleWithLogger() {
	// Set the logger instance to use
	WithLogger(xlog.WithZero(xlog.ZeroOptions{
		PrettyPrint: true,
		ErrorField:  "error",
	}))
}

func ExampleWithPrefetch() {
	// Allow 10 in-flight deliveries with no limit on buffered bytes;
	// the count is the worker runtime's sole concurrency bound.
	WithPrefetch(10, 0)
}

func ExampleWithName() {
	// If not set, publishers are automatically named as "publisher-*"
	// and consumers as "consumer-*"
	WithName("image-worker-3")
}

func ExampleWithTopology() {
	// Allows to load an existing topology declaration, for example
	// from YAML or JSON file, or received from a remote location
	var sampleTopology = `
exchanges:
- name: task_exchange
  kind: topic
  durable: true
queues:
- name: relay_queue
  durable: true
  arguments:
    x-max-priority: 255
- name: image-workers
  durable: true
  arguments:
    x-max-priority: 255
bindings:
- exchange: task_exchange
  queue: relay_queue
  routing_key:
  - "#"
- exchange: task_exchange
  queue: image-workers
  routing_key:
  - tasks.image-workers
`
	tp := Topology{}
	_ = yaml.Unmarshal([]byte(sampleTopology), &tp)
	WithTopology(tp)
}

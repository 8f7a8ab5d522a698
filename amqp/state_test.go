package amqp

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

func ExampleTopology() {
	// To simplify storage and sharing. The topology for an application
	// can be easily managed either in YAML or JSON format.
	var inYAML = `
exchanges:
- name: task_exchange
  kind: topic
  durable: true
- name: sample.notifications
  kind: fanout
  durable: true
queues:
- name: relay_queue
  durable: true
  auto_delete: false
  exclusive: false
  arguments:
    x-max-priority: 255
- name: image-workers
  durable: true
  auto_delete: false
  exclusive: false
  arguments:
    x-max-priority: 255
- name: notifications
  durable: true
  auto_delete: false
  exclusive: false
bindings:
- exchange: task_exchange
  queue: relay_queue
  routing_key:
  - "#"
- exchange: task_exchange
  queue: image-workers
  routing_key:
  - tasks.image-workers
- exchange: sample.notifications
  queue: notifications
`
	tp := Topology{}
	err := yaml.Unmarshal([]byte(inYAML), &tp)
	if err != nil {
		panic(err)
	}
}

func ExampleQueueOptions_AsArguments() {
	ttl, _ := time.ParseDuration("15s")
	exp, _ := time.ParseDuration("1h")
	opts := QueueOptions{
		MessageTTL:           &ttl,
		Expiration:           &exp,
		MaxLength:            500,
		MaxLengthBytes:       1024 * 100,
		DLExchange:           "sample.dead",
		SingleActiveConsumer: true,
		MaxPriority:          255,
		LazyMode:             true,
		Overflow:             OverflowRejectDL,
	}
	fmt.Printf("%+v", opts.AsArguments())
}

package broker

import (
	"context"

	"go.bryk.io/tacoq/amqp"
	"go.bryk.io/tacoq/errors"
	"go.bryk.io/tacoq/task"
)

// AckNacker lets a worker acknowledge or reject a single delivery exactly
// once. It is an interface, rather than a concrete type, so the worker
// runtime can be exercised in tests against an in-memory fake instead of
// a real AMQP delivery tag.
type AckNacker interface {
	// Ack confirms successful processing; the broker will not redeliver
	// the message.
	Ack() error

	// Nack rejects the delivery. When requeue is true the broker attempts
	// redelivery (to this or another consumer); when false the message is
	// dropped (or dead-lettered, if configured).
	Nack(requeue bool) error
}

// deliveryHandle is the AckNacker backed by a real AMQP delivery tag.
// Calling Ack or Nack more than once on the same handle is a no-op after
// the first call.
type deliveryHandle struct {
	raw  amqp.Delivery
	done *bool
}

func (h deliveryHandle) Ack() error {
	if *h.done {
		return nil
	}
	*h.done = true
	return h.raw.Ack(false)
}

func (h deliveryHandle) Nack(requeue bool) error {
	if *h.done {
		return nil
	}
	*h.done = true
	return h.raw.Nack(false, requeue)
}

// Delivery pairs a decoded task assignment with the handle used to
// acknowledge it.
type Delivery struct {
	Assignment task.Assignment
	Handle     AckNacker
}

// WorkerClient receives task assignments for a single worker kind.
type WorkerClient struct {
	cfg  Config
	kind task.WorkerKind
	con  *amqp.Consumer
}

// NewWorkerClient returns a disconnected worker client.
func NewWorkerClient(cfg Config) (*WorkerClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WorkerClient{cfg: cfg}, nil
}

// Connect opens the AMQP connection, declares the shared topology plus
// the durable, priority-capable queue for kind, and sets the channel's
// prefetch count — the sole concurrency bound the worker runtime
// observes; there is no additional in-process semaphore.
func (wc *WorkerClient) Connect(ctx context.Context, kind task.WorkerKind, prefetch int) error {
	wc.kind = kind
	queueName := string(kind)

	topology := amqp.Topology{
		Exchanges: []amqp.Exchange{{
			Name:    taskExchange,
			Kind:    "topic",
			Durable: true,
		}},
		Queues: []amqp.Queue{{
			Name:    relayQueue,
			Durable: true,
			Arguments: (&amqp.QueueOptions{
				MaxPriority: maxPriority,
			}).AsArguments(),
		}, {
			Name:    queueName,
			Durable: true,
			Arguments: (&amqp.QueueOptions{
				MaxPriority: maxPriority,
			}).AsArguments(),
		}},
		Bindings: []amqp.Binding{{
			Exchange:   taskExchange,
			Queue:      relayQueue,
			RoutingKey: []string{"#"},
		}, {
			Exchange:   taskExchange,
			Queue:      queueName,
			RoutingKey: []string{routingKey(queueName)},
		}},
	}

	con, err := amqp.NewConsumer(wc.cfg.URL,
		amqp.WithLogger(wc.cfg.logger()),
		amqp.WithTopology(topology),
		amqp.WithPrefetch(prefetch, 0))
	if err != nil {
		return errors.Wrap(err, "broker: connect")
	}
	wc.con = con

	select {
	case <-con.Ready():
	case <-ctx.Done():
		_ = con.Close()
		return ctx.Err()
	}
	return nil
}

// Disconnect gracefully closes the connection, waiting for any
// outstanding deliveries to finish propagating their ack/nack.
func (wc *WorkerClient) Disconnect() error {
	if wc.con == nil {
		return nil
	}
	return wc.con.Close()
}

// Listen opens the subscription for this worker's queue and returns a
// channel of decoded deliveries. The channel closes when the connection
// is lost or ctx is done; callers must drain it to avoid blocking the
// underlying AMQP channel.
func (wc *WorkerClient) Listen(ctx context.Context) (<-chan Delivery, error) {
	if wc.con == nil {
		return nil, ErrNotConnected
	}
	raw, _, err := wc.con.Subscribe(amqp.SubscribeOptions{
		Queue: string(wc.kind),
	})
	if err != nil {
		return nil, errors.Wrap(err, "broker: listen")
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-raw:
				if !ok {
					return
				}
				assignment, err := unmarshalAssignment(d.Body)
				if err != nil {
					// Malformed payload: nothing downstream can act on it,
					// drop it permanently rather than looping forever.
					_ = d.Nack(false, false)
					continue
				}
				done := false
				select {
				case out <- Delivery{Assignment: assignment, Handle: deliveryHandle{raw: d, done: &done}}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

package broker

import (
	"context"
	"sync"

	"go.bryk.io/tacoq/amqp"
	"go.bryk.io/tacoq/errors"
	"go.bryk.io/tacoq/task"
)

// PublisherClient submits task assignments and reports lifecycle events
// for a producer process. A single instance may publish assignments for
// any number of distinct worker kinds.
type PublisherClient struct {
	cfg      Config
	pub      *amqp.Publisher
	producer amqp.Producer
	kindsMu  sync.Mutex
	kinds    map[task.WorkerKind]bool // worker queues already declared
}

// NewPublisherClient returns a disconnected publisher client.
func NewPublisherClient(cfg Config) (*PublisherClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PublisherClient{
		cfg: cfg,
		producer: amqp.Producer{
			ContentType: "application/json",
			AppID:       "tacoq",
			SetTime:     true,
			SetID:       true,
		},
		kinds: make(map[task.WorkerKind]bool),
	}, nil
}

// Connect opens the AMQP connection and declares the shared topology:
// the durable topic exchange task assignments and lifecycle events flow
// through, and the durable, priority-capable relay_queue bound to catch
// every routing key.
func (pc *PublisherClient) Connect(ctx context.Context) error {
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
		}},
		Bindings: []amqp.Binding{{
			Exchange:   taskExchange,
			Queue:      relayQueue,
			RoutingKey: []string{"#"},
		}},
	}

	pub, err := amqp.NewPublisher(pc.cfg.URL,
		amqp.WithLogger(pc.cfg.logger()),
		amqp.WithTopology(topology))
	if err != nil {
		return errors.Wrap(err, "broker: connect")
	}
	pc.pub = pub

	select {
	case <-pub.Ready():
	case <-ctx.Done():
		_ = pub.Close()
		return ctx.Err()
	}
	return nil
}

// Disconnect gracefully closes the connection to the broker.
func (pc *PublisherClient) Disconnect() error {
	if pc.pub == nil {
		return nil
	}
	return pc.pub.Close()
}

// ensureWorkerQueue declares (once per process, per kind) the durable
// queue a worker of the given kind consumes from, along with its binding
// to task_exchange. A sync.Map-style cache keeps repeated publishes to a
// previously-seen kind from re-issuing the AMQP declare/bind calls.
func (pc *PublisherClient) ensureWorkerQueue(kind task.WorkerKind) error {
	pc.kindsMu.Lock()
	if pc.kinds[kind] {
		pc.kindsMu.Unlock()
		return nil
	}
	pc.kindsMu.Unlock()

	queueName := string(kind)
	if _, err := pc.pub.AddQueue(amqp.Queue{
		Name:    queueName,
		Durable: true,
		Arguments: (&amqp.QueueOptions{
			MaxPriority: maxPriority,
		}).AsArguments(),
	}); err != nil {
		return errors.Wrapf(err, "declare queue %s", queueName)
	}
	if err := pc.pub.AddBinding(amqp.Binding{
		Exchange:   taskExchange,
		Queue:      queueName,
		RoutingKey: []string{routingKey(queueName)},
	}); err != nil {
		return errors.Wrapf(err, "bind queue %s", queueName)
	}

	pc.kindsMu.Lock()
	pc.kinds[kind] = true
	pc.kindsMu.Unlock()
	return nil
}

func (pc *PublisherClient) publish(routingKey string, body []byte, priority uint8, ttl int) error {
	if pc.pub == nil {
		return ErrNotConnected
	}
	msg := pc.producer.Message(body)
	opts := amqp.MessageOptions{
		Exchange:   taskExchange,
		RoutingKey: routingKey,
		Persistent: true,
		Priority:   priority,
		TTL:        ttl,
	}

	if !pc.cfg.PublisherConfirms {
		return pc.pub.UnsafePush(msg, opts)
	}
	confirmed, err := pc.pub.Push(msg, opts)
	if err != nil {
		return err
	}
	if !confirmed {
		return ErrPublishRejected
	}
	return nil
}

// PublishAssignment hands a task to the worker pool matching its
// WorkerKind. The destination queue is declared on first use.
func (pc *PublisherClient) PublishAssignment(ctx context.Context, a task.Assignment) error {
	_ = ctx
	if err := pc.ensureWorkerQueue(a.WorkerKind); err != nil {
		return err
	}
	body, err := marshalAssignment(a)
	if err != nil {
		return errors.Wrap(err, "broker: encode assignment")
	}
	var ttl int
	if a.TTL > 0 {
		ttl = int(a.TTL.Seconds())
	}
	return pc.publish(routingKey(string(a.WorkerKind)), body, a.Priority, ttl)
}

// PublishRunning reports that a worker started executing a task. The
// message is routed so that only relay_queue's catch-all binding
// receives it; no worker queue is a match.
func (pc *PublisherClient) PublishRunning(ctx context.Context, r task.Running) error {
	_ = ctx
	body, err := marshalRunning(r)
	if err != nil {
		return errors.Wrap(err, "broker: encode running event")
	}
	return pc.publish(relayRoutingKey(r.ID.String()), body, 0, 0)
}

// PublishCompleted reports a task's final outcome. Routed the same way
// as PublishRunning.
func (pc *PublisherClient) PublishCompleted(ctx context.Context, c task.Completed) error {
	_ = ctx
	body, err := marshalCompleted(c)
	if err != nil {
		return errors.Wrap(err, "broker: encode completed event")
	}
	return pc.publish(relayRoutingKey(c.ID.String()), body, 0, 0)
}

// Purge removes all pending messages from the queue serving the given
// worker kind. Only callable when Config.TestMode is enabled, to guard
// against accidental data loss against a production broker.
func (pc *PublisherClient) Purge(kind task.WorkerKind) error {
	if !pc.cfg.TestMode {
		return errors.New("broker: Purge requires TestMode")
	}
	if pc.pub == nil {
		return ErrNotConnected
	}
	_, err := pc.pub.PurgeQueue(string(kind))
	return err
}

package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// QueueName identifies one of the three stage channels
type QueueName string

const (
	QueueProcessing QueueName = "processing"
	QueueChunking   QueueName = "chunking"
	QueueIndexing   QueueName = "indexing"
)

// QueueNames lists every stage channel in pipeline order
var QueueNames = []QueueName{QueueProcessing, QueueChunking, QueueIndexing}

// DeleteFunc acknowledges a received message. Not calling it leaves the
// message invisible until its visibility timeout lapses, after which it
// redelivers (at-least-once semantics).
type DeleteFunc func() error

// QueueManager manages the persistent stage queues
type QueueManager interface {
	// Enqueue appends an envelope to the named queue
	Enqueue(ctx context.Context, queue QueueName, env *models.Envelope) error

	// Receive returns the oldest visible envelope plus its delete function,
	// or models.ErrNoMessage when the queue is empty.
	Receive(ctx context.Context, queue QueueName) (*models.Envelope, DeleteFunc, error)

	// Length returns the number of messages currently in the queue,
	// including in-flight ones.
	Length(ctx context.Context, queue QueueName) (int, error)

	// Clear removes every message from the queue
	Clear(ctx context.Context, queue QueueName) error

	Close() error
}

// MessageHandler processes one received envelope. A returned error leaves
// the message unacknowledged for redelivery.
type MessageHandler func(ctx context.Context, env *models.Envelope) error

// WorkerPool polls the stage queues and dispatches messages to registered
// handlers by message type.
type WorkerPool interface {
	RegisterHandler(msgType models.MessageType, handler MessageHandler)
	Start() error
	Stop() error
}

package notification

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

const (
	maxMessages       = 5
	visibilityTimeout = 15
	waitTimeSeconds   = 15
	receiveRetryDelay = 5 * time.Second
)

// Handler receives decoded status events
type Handler func(evt *Event)

// Predicate selects which job ids a handler cares about
type Predicate func(jobID string) bool

// sqsAPI is the slice of the SQS client the listener needs
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type registration struct {
	match Predicate
	fn    Handler
}

// QueueListener polls a status queue in the background and fans decoded
// events out to every registered handler whose predicate matches. A
// listener runs at most once; after Stop it cannot be restarted.
type QueueListener struct {
	client   sqsAPI
	queueURL string

	mu       sync.Mutex
	handlers map[int]registration
	nextID   int
	started  bool
	stopped  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueueListener creates a listener bound to one queue URL
func NewQueueListener(client sqsAPI, queueURL string) *QueueListener {
	return &QueueListener{
		client:   client,
		queueURL: queueURL,
		handlers: make(map[int]registration),
		done:     make(chan struct{}),
	}
}

// AddHandler registers a handler and returns a token for RemoveHandler.
// Handlers added after Start still receive subsequent events.
func (l *QueueListener) AddHandler(match Predicate, fn Handler) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.handlers[l.nextID] = registration{match: match, fn: fn}
	return l.nextID
}

// RemoveHandler unregisters a previously added handler
func (l *QueueListener) RemoveHandler(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, id)
}

// Start launches the polling loop. Calling Start again, or after Stop,
// is a no-op.
func (l *QueueListener) Start() {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	go l.poll(ctx)
}

// Stop cancels the in-flight receive and waits for the polling loop to
// exit. Safe to call multiple times.
func (l *QueueListener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	started := l.started
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-l.done
	}
}

func (l *QueueListener) poll(ctx context.Context) {
	defer close(l.done)

	for {
		out, err := l.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(l.queueURL),
			MaxNumberOfMessages: maxMessages,
			VisibilityTimeout:   visibilityTimeout,
			WaitTimeSeconds:     waitTimeSeconds,
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("[Listener] receive on %s failed: %v", l.queueURL, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveRetryDelay):
			}
			continue
		}

		for _, msg := range out.Messages {
			if msg.Body != nil {
				l.dispatch(*msg.Body)
			}

			// Acknowledge even when no handler matched or decoding
			// failed, so a bad message cannot wedge the queue.
			_, err := l.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(l.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("[Listener] delete on %s failed: %v", l.queueURL, err)
			}
		}
	}
}

func (l *QueueListener) dispatch(body string) {
	evt, err := ParseEvent(body)
	if err != nil {
		log.Printf("[Listener] dropping undecodable message: %v", err)
		return
	}

	l.mu.Lock()
	matched := make([]Handler, 0, len(l.handlers))
	for _, reg := range l.handlers {
		if reg.match(evt.JobID) {
			matched = append(matched, reg.fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range matched {
		l.invoke(fn, evt)
	}
}

// invoke shields the polling loop from a panicking handler
func (l *QueueListener) invoke(fn Handler, evt *Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Listener] handler panicked on %s: %v", evt, r)
		}
	}()
	fn(evt)
}

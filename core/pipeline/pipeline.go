// Package pipeline implements the outbound dispatch engine: a coalescing
// device-state slot alongside bounded FIFO queues for telemetry and topic
// events, drained by the supervisor in strict priority order.
package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/nimbusiot/deviceclient/core/model"
	"github.com/nimbusiot/deviceclient/core/queue"
)

// Kind identifies what a Work item carries.
type Kind int

const (
	// None means nothing is pending.
	None Kind = iota
	// State carries pending device-state bytes.
	State
	// Telemetry carries a telemetry TopicEvent.
	Telemetry
	// TopicEventKind carries an arbitrary TopicEvent.
	TopicEventKind
)

// Work is produced by TakeNextWork. StateRef is the exact slot reference
// that was read, to be handed back to ClearStateIfEqual after a successful
// (or permanently failed) publish.
type Work struct {
	Kind     Kind
	State    []byte
	StateRef *[]byte
	Event    model.TopicEvent
}

// Settings configures the two bounded queues backing a Pipeline.
type Settings struct {
	Capacity int
	Policy   queue.DropPolicy
}

// Pipeline holds the device-state slot and the telemetry/topic-event
// queues-plus-unsent-slot pairs described in the data model: each queue is
// guarded by its own lock, and an event leaves its queue only into its
// unsent slot, leaving the unsent slot only after a successful publish.
type Pipeline struct {
	state atomic.Pointer[[]byte]

	telemetryMu     sync.Mutex
	telemetryQueue  *queue.Bounded[model.TopicEvent]
	unsentTelemetry *model.TopicEvent

	topicMu     sync.Mutex
	topicQueue  *queue.Bounded[model.TopicEvent]
	unsentTopic *model.TopicEvent
}

// New constructs a Pipeline with the given queue settings for telemetry and
// topic events respectively.
func New(telemetry, topicEvents Settings) (*Pipeline, error) {
	tq, err := queue.New[model.TopicEvent](telemetry.Capacity, telemetry.Policy)
	if err != nil {
		return nil, err
	}
	eq, err := queue.New[model.TopicEvent](topicEvents.Capacity, topicEvents.Policy)
	if err != nil {
		return nil, err
	}
	return &Pipeline{telemetryQueue: tq, topicQueue: eq}, nil
}

// SetPendingState atomically replaces the state slot and reports whether it
// was previously empty, so the caller knows whether to wake the supervisor.
func (p *Pipeline) SetPendingState(payload []byte) (wasEmpty bool) {
	old := p.state.Swap(&payload)
	return old == nil
}

// EnqueueTelemetry offers e to the telemetry queue. It returns true only if
// the queue's size strictly increased: under TAIL_REJECT at capacity the
// offer is refused outright, and under HEAD_DROP at capacity the oldest
// entry is evicted to make room, so size is unchanged and this also
// reports false.
func (p *Pipeline) EnqueueTelemetry(e model.TopicEvent) bool {
	p.telemetryMu.Lock()
	defer p.telemetryMu.Unlock()
	before := p.telemetryQueue.Len()
	if !p.telemetryQueue.Offer(e) {
		return false
	}
	return p.telemetryQueue.Len() > before
}

// EnqueueTopicEvent is the topic-event analogue of EnqueueTelemetry.
func (p *Pipeline) EnqueueTopicEvent(e model.TopicEvent) bool {
	p.topicMu.Lock()
	defer p.topicMu.Unlock()
	before := p.topicQueue.Len()
	if !p.topicQueue.Offer(e) {
		return false
	}
	return p.topicQueue.Len() > before
}

// TakeNextWork returns the next item to publish in strict priority: pending
// device state first, then the telemetry unsent slot (refilled from the
// telemetry queue if empty), then the topic-event unsent slot likewise.
// Kind is None when every slot and queue is empty.
func (p *Pipeline) TakeNextWork() Work {
	if ref := p.state.Load(); ref != nil {
		return Work{Kind: State, State: *ref, StateRef: ref}
	}
	if e, ok := p.handleTelemetry(); ok {
		return Work{Kind: Telemetry, Event: e}
	}
	if e, ok := p.handleTopicEvent(); ok {
		return Work{Kind: TopicEventKind, Event: e}
	}
	return Work{Kind: None}
}

func (p *Pipeline) handleTelemetry() (model.TopicEvent, bool) {
	p.telemetryMu.Lock()
	defer p.telemetryMu.Unlock()
	if p.unsentTelemetry == nil {
		if e, ok := p.telemetryQueue.Poll(); ok {
			p.unsentTelemetry = &e
		}
	}
	if p.unsentTelemetry == nil {
		return model.TopicEvent{}, false
	}
	return *p.unsentTelemetry, true
}

func (p *Pipeline) handleTopicEvent() (model.TopicEvent, bool) {
	p.topicMu.Lock()
	defer p.topicMu.Unlock()
	if p.unsentTopic == nil {
		if e, ok := p.topicQueue.Poll(); ok {
			p.unsentTopic = &e
		}
	}
	if p.unsentTopic == nil {
		return model.TopicEvent{}, false
	}
	return *p.unsentTopic, true
}

// ClearStateIfEqual clears the state slot only if it still holds the exact
// slot reference that TakeNextWork handed out, preserving a newer state
// write that arrived while the send was in flight.
func (p *Pipeline) ClearStateIfEqual(ref *[]byte) bool {
	return p.state.CompareAndSwap(ref, nil)
}

// ClearUnsentTelemetry clears the telemetry unsent slot after a successful
// (or permanently failed) publish.
func (p *Pipeline) ClearUnsentTelemetry() {
	p.telemetryMu.Lock()
	p.unsentTelemetry = nil
	p.telemetryMu.Unlock()
}

// ClearUnsentTopicEvent is the topic-event analogue of
// ClearUnsentTelemetry.
func (p *Pipeline) ClearUnsentTopicEvent() {
	p.topicMu.Lock()
	p.unsentTopic = nil
	p.topicMu.Unlock()
}

// TelemetryQueueDepth reports the current number of queued-but-not-yet-sent
// telemetry events, for queue-depth metrics.
func (p *Pipeline) TelemetryQueueDepth() int {
	p.telemetryMu.Lock()
	defer p.telemetryMu.Unlock()
	return p.telemetryQueue.Len()
}

// TopicEventQueueDepth is the topic-event analogue of
// TelemetryQueueDepth.
func (p *Pipeline) TopicEventQueueDepth() int {
	p.topicMu.Lock()
	defer p.topicMu.Unlock()
	return p.topicQueue.Len()
}

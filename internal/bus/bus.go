// Package bus carries speech pipeline events from the engine, synchronizer
// and animator to their subscribers.
//
// A Bus is created by the caller and handed to each component; there is no
// process-wide instance. Handlers run synchronously in the publisher's
// goroutine, in subscription order, so subscribers observe events in the
// order they were published. Handlers must return quickly and must not call
// back into the publisher.
package bus

import (
	"sync"

	"github.com/normanking/talkinghead/internal/emotion"
	"github.com/normanking/talkinghead/internal/timeline"
)

// EventType identifies an event.
type EventType string

const (
	EventTypeSynthesisStarted EventType = "tts.synthesis_started"
	EventTypePlaybackStarted  EventType = "playback.started"
	EventTypePhonemeChanged   EventType = "playback.phoneme_changed"
	EventTypePlaybackFinished EventType = "playback.finished"
	EventTypeError            EventType = "speech.error"
	EventTypeEmotionApplied   EventType = "avatar.emotion_applied"
	EventTypeChatResponse     EventType = "chat.response"
)

// AllEventTypes lists every event type in publication order of a session.
var AllEventTypes = []EventType{
	EventTypeSynthesisStarted,
	EventTypePlaybackStarted,
	EventTypePhonemeChanged,
	EventTypePlaybackFinished,
	EventTypeError,
	EventTypeEmotionApplied,
	EventTypeChatResponse,
}

// Event is a published event. Only the fields relevant to Type are set.
type Event struct {
	Type     EventType          `json:"type"`
	Session  string             `json:"session,omitempty"`
	Text     string             `json:"text,omitempty"`     // SynthesisStarted, ChatResponse
	Timeline *timeline.Timeline `json:"timeline,omitempty"` // PlaybackStarted
	Entry    timeline.Entry     `json:"entry"`              // PhonemeChanged
	Index    int                `json:"index"`              // PhonemeChanged
	Message  string             `json:"message,omitempty"`  // Error
	Err      error              `json:"-"`                  // Error
	Emotion  emotion.Label      `json:"emotion,omitempty"`  // EmotionApplied
}

// SynthesisStarted builds a SynthesisStarted event.
func SynthesisStarted(session, text string) Event {
	return Event{Type: EventTypeSynthesisStarted, Session: session, Text: text}
}

// PlaybackStarted builds a PlaybackStarted event.
func PlaybackStarted(session string, tl *timeline.Timeline) Event {
	return Event{Type: EventTypePlaybackStarted, Session: session, Timeline: tl}
}

// PhonemeChanged builds a PhonemeChanged event.
func PhonemeChanged(session string, entry timeline.Entry, index int) Event {
	return Event{Type: EventTypePhonemeChanged, Session: session, Entry: entry, Index: index}
}

// PlaybackFinished builds a PlaybackFinished event.
func PlaybackFinished(session string) Event {
	return Event{Type: EventTypePlaybackFinished, Session: session}
}

// ErrorOccurred builds an Error event.
func ErrorOccurred(session string, err error) Event {
	return Event{Type: EventTypeError, Session: session, Message: err.Error(), Err: err}
}

// EmotionApplied builds an EmotionApplied event.
func EmotionApplied(label emotion.Label) Event {
	return Event{Type: EventTypeEmotionApplied, Emotion: label}
}

// ChatResponse builds a ChatResponse event.
func ChatResponse(text string) Event {
	return Event{Type: EventTypeChatResponse, Text: text}
}

// Handler handles one event.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous publish/subscribe hub.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[EventType][]subscription)}
}

// Subscribe adds a handler for an event type and returns a function that
// removes it.
func (b *Bus) Subscribe(eventType EventType, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() { b.remove(eventType, id) }
}

// SubscribeMultiple adds a handler for several event types.
func (b *Bus) SubscribeMultiple(eventTypes []EventType, handler Handler) (unsubscribe func()) {
	cancels := make([]func(), 0, len(eventTypes))
	for _, et := range eventTypes {
		cancels = append(cancels, b.Subscribe(et, handler))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (b *Bus) remove(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every handler of its type before returning.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[event.Type]))
	copy(subs, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// Clear removes all handlers.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]subscription)
}

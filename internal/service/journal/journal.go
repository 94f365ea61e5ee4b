// Package journal keeps the user-visible activity log.
package journal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	waLog "go.mau.fi/whatsmeow/util/log"

	"syncnexus/internal/infra/fault"
)

// Kind is the category shown next to an entry.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindAI      Kind = "ai"
)

// DefaultCapacity is the number of entries retained.
const DefaultCapacity = 50

// Entry is one timestamped, typed log line.
type Entry struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Kind Kind      `json:"type"`
	// Class is the failure kind for error entries.
	Class fault.Kind `json:"class,omitempty"`
	Text  string     `json:"text"`
}

// Journal is a bounded, newest-first activity log mirrored to a logger.
type Journal struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	log      waLog.Logger
	now      func() time.Time
}

// New creates a Journal holding up to capacity entries.
func New(capacity int, log waLog.Logger) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		capacity: capacity,
		log:      log.Sub("Journal"),
		now:      time.Now,
	}
}

func (j *Journal) add(e Entry) Entry {
	e.ID = uuid.NewString()
	e.Time = j.now()

	j.mu.Lock()
	j.entries = append([]Entry{e}, j.entries...)
	if len(j.entries) > j.capacity {
		j.entries = j.entries[:j.capacity]
	}
	j.mu.Unlock()
	return e
}

// Info records a progress message.
func (j *Journal) Info(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	j.add(Entry{Kind: KindInfo, Text: text})
	j.log.Infof("%s", text)
}

// Success records a completed operation.
func (j *Journal) Success(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	j.add(Entry{Kind: KindSuccess, Text: text})
	j.log.Infof("%s", text)
}

// AI records a model-related event.
func (j *Journal) AI(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	j.add(Entry{Kind: KindAI, Text: text})
	j.log.Infof("%s", text)
}

// Error records a failure, classified by its fault kind.
func (j *Journal) Error(err error, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	if err != nil {
		text = fmt.Sprintf("%s: %v", text, err)
	}
	kind := fault.KindOf(err)
	j.add(Entry{Kind: KindError, Class: kind, Text: text})
	j.log.Errorf("[%s] %s", kind, text)
}

// Entries returns a copy of the log, newest first.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

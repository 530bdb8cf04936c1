// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"sync"
)

// Stream delivers one task's events as they happen. The channel is closed
// after the terminal event, or early once Close is called. Consumers must
// either drain Events or call Close.
type Stream struct {
	events    chan Event
	closed    chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// ExecuteTaskStream starts a task and returns its event stream. Cancelling
// ctx ends the task with an error event; Close abandons it.
func (e *Engine) ExecuteTaskStream(ctx context.Context, server Server, prompt string, taskCtx map[string]any) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		events: make(chan Event, e.eventBuffer),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	t := e.newTask(server, prompt, taskCtx, s.send)
	go func() {
		defer close(s.done)
		defer close(s.events)
		defer cancel()
		e.run(ctx, t)
	}()
	return s
}

func (s *Stream) send(ev Event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.closed:
		return false
	}
}

// Events returns the event channel.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Done is closed once the task has stopped and its session is released.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close stops the task and waits until its session is released. It is safe
// to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
	<-s.done
}

// Collect drains the stream into a slice.
func (s *Stream) Collect() []Event {
	var events []Event
	for ev := range s.events {
		events = append(events, ev)
	}
	return events
}

package batch

import "sync"

// Collector records every event it observes, in arrival order.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Observe(evt Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Transitions groups the observed statuses by job id.
func (c *Collector) Transitions() map[string][]Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]Status)
	for _, evt := range c.events {
		out[evt.JobID] = append(out[evt.JobID], evt.Status)
	}
	return out
}

// ChannelObserver forwards events to ch. Sends block, so the receiver must keep draining
// until the batch returns.
func ChannelObserver(ch chan<- Event) Observer {
	return func(evt Event) { ch <- evt }
}

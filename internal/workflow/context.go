package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Context is the deterministic execution context handed to workflow code.
// Time and identifiers are journaled: the first execution records real
// values, replays return the recorded ones.
type Context struct {
	ctx     context.Context
	id      string
	journal Journal
	seq     int
}

// newContext starts a workflow context at the beginning of the history.
func newContext(ctx context.Context, journal Journal, workflowID string) *Context {
	return &Context{ctx: ctx, id: workflowID, journal: journal}
}

// WorkflowID returns the deterministic workflow identifier.
func (c *Context) WorkflowID() string { return c.id }

// Context returns the underlying cancellation context. Activities receive
// it for their side effects; workflow code must not use it for timing.
func (c *Context) Context() context.Context { return c.ctx }

// Now returns the journaled current time. On first execution the wall
// clock is read once and recorded; replays return the recorded instant.
func (c *Context) Now() (time.Time, error) {
	entry, err := c.step(KindNow, "", func() ([]byte, error) {
		return json.Marshal(time.Now().UTC())
	})
	if err != nil {
		return time.Time{}, err
	}
	var t time.Time
	if err := json.Unmarshal(entry.Result, &t); err != nil {
		return time.Time{}, fmt.Errorf("decode journaled time: %w", err)
	}
	return t, nil
}

// NewID returns a journaled unique identifier.
func (c *Context) NewID() (string, error) {
	entry, err := c.step(KindID, "", func() ([]byte, error) {
		return json.Marshal(uuid.NewString())
	})
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(entry.Result, &id); err != nil {
		return "", fmt.Errorf("decode journaled id: %w", err)
	}
	return id, nil
}

// step replays the entry at the current sequence position, or produces and
// records a new one. The sequence cursor always advances by one.
func (c *Context) step(kind, name string, produce func() ([]byte, error)) (*Entry, error) {
	seq := c.seq
	c.seq++

	entry, err := c.journal.Get(c.ctx, c.id, seq)
	if err == nil {
		if entry.Kind != kind || entry.Name != name {
			return nil, fmt.Errorf("history mismatch at seq %d: journaled %s/%s, executing %s/%s",
				seq, entry.Kind, entry.Name, kind, name)
		}
		return entry, nil
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	result, err := produce()
	if err != nil {
		return nil, err
	}
	recorded := Entry{
		WorkflowID: c.id,
		Seq:        seq,
		Kind:       kind,
		Name:       name,
		Result:     result,
		RecordedAt: time.Now().UTC(),
	}
	if err := c.journal.Append(c.ctx, recorded); err != nil {
		return nil, fmt.Errorf("append journal: %w", err)
	}
	return &recorded, nil
}

// recordFailure journals a terminal activity failure at the current
// position (the cursor was already advanced by step's caller).
func (c *Context) recordFailure(seq int, name string, cause error) error {
	entry := Entry{
		WorkflowID: c.id,
		Seq:        seq,
		Kind:       KindActivity,
		Name:       name,
		Err:        cause.Error(),
		RecordedAt: time.Now().UTC(),
	}
	if err := c.journal.Append(c.ctx, entry); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}


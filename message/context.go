package message

import (
	"encoding/json"
	"sync"
	"time"
)

// Context is the mutable in-memory cell wrapping a Message for the
// duration of a single pipeline traversal. It is single-owner: the
// processor stage holds one, and the destination stage hands each
// destination goroutine its own deep clone (see chain's runDestinations).
type Context struct {
	mu  sync.Mutex
	msg *Message
}

// NewContext builds a fresh context for a brand-new message (the
// execute path). Properties and metadata start empty.
func NewContext(id, handlerChainName string, content any) *Context {
	return &Context{
		msg: &Message{
			ID:               id,
			HandlerChainName: handlerChainName,
			Content:          content,
			Properties:       make(map[string]any),
		},
	}
}

// NewContextFromMessage builds a context from a persisted Message
// verbatim, preserving id, properties and the destination skip list
// (the replay path).
func NewContextFromMessage(msg *Message) *Context {
	clone := msg.Clone()
	if clone.Properties == nil {
		clone.Properties = make(map[string]any)
	}
	return &Context{msg: clone}
}

// ID returns the message's stable identifier.
func (c *Context) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msg.ID
}

// SetCreatedAt stamps the message's creation timestamp. Called once by
// HandlerChain.Execute using its configured clock.
func (c *Context) SetCreatedAt(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msg.CreatedAt = t
}

// ChainName returns the handler chain name the message was built for.
func (c *Context) ChainName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msg.HandlerChainName
}

// Content returns a deep clone of the current content value.
func (c *Context) Content() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return deepCopyValue(c.msg.Content)
}

// SetContent replaces the current content with a deep clone of value.
// Used by transformer processors.
func (c *Context) SetContent(value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msg.Content = deepCopyValue(value)
}

// ContentAs decodes the current content into target, which must be a
// pointer. Conversion is performed via a JSON round-trip; a failure is
// surfaced as *ConversionError.
func (c *Context) ContentAs(target any) error {
	c.mu.Lock()
	content := c.msg.Content
	c.mu.Unlock()
	return decodeInto(content, target, "content")
}

// SetProperty stores a deep clone of value under key.
func (c *Context) SetProperty(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msg.Properties == nil {
		c.msg.Properties = make(map[string]any)
	}
	c.msg.Properties[key] = deepCopyValue(value)
}

// Property returns a deep clone of the value stored under key, and
// whether it was present.
func (c *Context) Property(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.msg.Properties[key]
	if !ok {
		return nil, false
	}
	return deepCopyValue(v), true
}

// PropertyAs decodes the property stored under key into target.
func (c *Context) PropertyAs(key string, target any) error {
	c.mu.Lock()
	v, ok := c.msg.Properties[key]
	c.mu.Unlock()
	if !ok {
		return &ConversionError{Field: key, Cause: ErrConversionFailed}
	}
	return decodeInto(v, target, key)
}

// HasProperty reports whether key is set.
func (c *Context) HasProperty(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.msg.Properties[key]
	return ok
}

// RemoveProperty deletes key, if present.
func (c *Context) RemoveProperty(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.msg.Properties, key)
}

// DestinationsToSkip returns a copy of the current skip list.
func (c *Context) DestinationsToSkip() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msg.Metadata.DestinationsToSkip...)
}

// ShouldSkip reports whether id is already in the skip list.
func (c *Context) ShouldSkip(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msg.Metadata.HasSkip(id)
}

// MarkDestinationSucceeded appends id to the skip list if not already
// present, and records its result value.
func (c *Context) MarkDestinationSucceeded(id string, result any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.msg.Metadata.HasSkip(id) {
		c.msg.Metadata.DestinationsToSkip = append(c.msg.Metadata.DestinationsToSkip, id)
	}
	if c.msg.DestinationResults == nil {
		c.msg.DestinationResults = make(map[string]any)
	}
	c.msg.DestinationResults[id] = deepCopyValue(result)
}

// SetDestinationError records a terminal failure for destination id.
func (c *Context) SetDestinationError(id string, info ErrorInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msg.DestinationErrors == nil {
		c.msg.DestinationErrors = make(map[string]ErrorInfo)
	}
	c.msg.DestinationErrors[id] = info
}

// SetErrorSnapshot records the most recent failure snapshot at the
// top level of the message (errorMsg/errorStackTrace/errorDetails).
func (c *Context) SetErrorSnapshot(errMsg, stackTrace, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msg.ErrorMsg = errMsg
	c.msg.ErrorStackTrace = stackTrace
	c.msg.ErrorDetails = detail
}

// Clone returns a new Context wrapping a deep copy of the underlying
// Message. Used to give each destination goroutine an isolated context,
// and to take the orchestrator's private "snapshot" before processors run.
func (c *Context) Clone() *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Context{msg: c.msg.Clone()}
}

// ToMessage returns a deep copy of the underlying Message, suitable for
// persisting to a store.
func (c *Context) ToMessage() *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msg.Clone()
}

// CleanForReplay clears the error snapshot and destination results in
// place, preserving id, handlerChainName, content, properties and the
// skip list. Called once at the start of every replay attempt.
func (c *Context) CleanForReplay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msg.CleanForReplay()
}

func decodeInto(value any, target any, field string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &ConversionError{Field: field, Cause: err}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &ConversionError{Field: field, Cause: err}
	}
	return nil
}

package web

import (
	"context"
	"net/http"
	"sort"
	"sync"
)

// Contexts bundles the six context objects of one request
type Contexts struct {
	Application *Application
	Cookies     *Cookies
	Errors      *Errors
	Messages    *Messages
	Request     *Request
	Session     *Session
}

// Application is the deployment-wide attribute map. It is shared by every
// request and by initializers, so all access is synchronized.
type Application struct {
	name  string
	mu    sync.RWMutex
	attrs map[string]any
}

// NewApplication creates an empty application context
func NewApplication(name string) *Application {
	return &Application{
		name:  name,
		attrs: make(map[string]any),
	}
}

// Name returns the application name
func (a *Application) Name() string {
	return a.name
}

// Get returns an attribute
func (a *Application) Get(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.attrs[key]
	return v, ok
}

// Set stores an attribute
func (a *Application) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attrs[key] = value
}

// Delete removes an attribute
func (a *Application) Delete(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.attrs, key)
}

// Keys returns the attribute names in sorted order
func (a *Application) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0, len(a.attrs))
	for k := range a.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Cookies exposes the request cookies and collects cookies to send back
type Cookies struct {
	incoming []*http.Cookie
	outgoing []*http.Cookie
}

// NewCookies wraps the cookies a client sent
func NewCookies(incoming []*http.Cookie) *Cookies {
	return &Cookies{incoming: incoming}
}

// Get returns the value of the named request cookie
func (c *Cookies) Get(name string) (string, bool) {
	for _, ck := range c.incoming {
		if ck.Name == name {
			return ck.Value, true
		}
	}
	return "", false
}

// Set queues a cookie for the response
func (c *Cookies) Set(ck *http.Cookie) {
	c.outgoing = append(c.outgoing, ck)
}

// Outgoing returns the cookies queued for the response
func (c *Cookies) Outgoing() []*http.Cookie {
	return c.outgoing
}

// Errors holds validation messages keyed by field. It is a view over the
// session's error map, so messages survive a redirect.
type Errors struct {
	fields map[string][]string
}

// NewErrors wraps m. A nil map starts a fresh, unsaved error set.
func NewErrors(m map[string][]string) *Errors {
	if m == nil {
		m = make(map[string][]string)
	}
	return &Errors{fields: m}
}

// Add appends a message for field
func (e *Errors) Add(field, message string) {
	e.fields[field] = append(e.fields[field], message)
}

// Get returns the messages for field
func (e *Errors) Get(field string) []string {
	return e.fields[field]
}

// Has reports whether field has at least one message
func (e *Errors) Has(field string) bool {
	return len(e.fields[field]) > 0
}

// Empty reports whether no field has messages
func (e *Errors) Empty() bool {
	return len(e.fields) == 0
}

// Clear removes every message
func (e *Errors) Clear() {
	for k := range e.fields {
		delete(e.fields, k)
	}
}

// Fields returns the fields with messages in sorted order
func (e *Errors) Fields() []string {
	fields := make([]string, 0, len(e.fields))
	for k := range e.fields {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Messages holds one-shot user messages (flash). Like Errors it is a view
// over session state.
type Messages struct {
	list *[]string
}

// NewMessages wraps the slice pointed to by list. A nil pointer starts a
// fresh, unsaved list.
func NewMessages(list *[]string) *Messages {
	if list == nil {
		list = new([]string)
	}
	return &Messages{list: list}
}

// Add appends a message
func (m *Messages) Add(message string) {
	*m.list = append(*m.list, message)
}

// All returns the pending messages without consuming them
func (m *Messages) All() []string {
	return *m.list
}

// Flush returns the pending messages and clears them
func (m *Messages) Flush() []string {
	out := *m.list
	*m.list = nil
	return out
}

// Request is the HTTP exchange of the current request
type Request struct {
	Raw    *http.Request
	Writer http.ResponseWriter
	// Action is the action name the router resolved
	Action string
}

// NewRequest wraps an HTTP exchange
func NewRequest(w http.ResponseWriter, r *http.Request, action string) *Request {
	return &Request{Raw: r, Writer: w, Action: action}
}

// Context returns the request context
func (r *Request) Context() context.Context {
	if r.Raw == nil {
		return context.Background()
	}
	return r.Raw.Context()
}

// Method returns the HTTP method
func (r *Request) Method() string {
	return r.Raw.Method
}

// Path returns the URL path
func (r *Request) Path() string {
	return r.Raw.URL.Path
}

// Header returns a request header value
func (r *Request) Header(name string) string {
	return r.Raw.Header.Get(name)
}

// Session is the per-client attribute map
type Session struct {
	id   string
	data map[string]any
}

// NewSession wraps the attribute map of session id
func NewSession(id string, data map[string]any) *Session {
	if data == nil {
		data = make(map[string]any)
	}
	return &Session{id: id, data: data}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Get returns an attribute
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Set stores an attribute
func (s *Session) Set(key string, value any) {
	s.data[key] = value
}

// Delete removes an attribute
func (s *Session) Delete(key string) {
	delete(s.data, key)
}

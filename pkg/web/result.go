// Package web holds the values handlers exchange with the server: the Result
// types an action returns and the six request contexts injected into
// handler instances before they run.
package web

import "net/http"

// ImportPath is the path handler sources import this package by
const ImportPath = "github.com/conduit-lang/weft/pkg/web"

// Result is what an action or interceptor returns. A nil Result is empty:
// interceptors return nil to let the request continue.
type Result interface {
	ResultKind() string
}

// Empty reports whether r carries nothing to render
func Empty(r Result) bool {
	return r == nil
}

// Text renders a plain text body
type Text struct {
	Body   string
	Status int
}

// ResultKind implements Result
func (Text) ResultKind() string { return "text" }

// JSON renders Value as a JSON document
type JSON struct {
	Value  any
	Status int
}

// ResultKind implements Result
func (JSON) ResultKind() string { return "json" }

// View renders the named template with Data
type View struct {
	Name   string
	Data   any
	Status int
}

// ResultKind implements Result
func (View) ResultKind() string { return "view" }

// Redirect sends the client to URL
type Redirect struct {
	URL    string
	Status int
}

// ResultKind implements Result
func (Redirect) ResultKind() string { return "redirect" }

// StatusCode returns the redirect status, 302 when unset
func (r Redirect) StatusCode() int {
	if r.Status == 0 {
		return http.StatusFound
	}
	return r.Status
}

// File streams a file from disk. Name, when set, is used as the download
// file name.
type File struct {
	Path string
	Name string
}

// ResultKind implements Result
func (File) ResultKind() string { return "file" }

// Status writes only a status code
type Status int

// ResultKind implements Result
func (Status) ResultKind() string { return "status" }

// TextResult returns a text result with status 200
func TextResult(body string) Text {
	return Text{Body: body, Status: http.StatusOK}
}

// NotFound is a convenience result for handlers that looked and found nothing
func NotFound() Status {
	return Status(http.StatusNotFound)
}

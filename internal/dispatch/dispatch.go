// Package dispatch runs one request through a resolved controller.
//
// A request moves through a fixed sequence of states: contexts are
// injected into the controller and every bound interceptor, request
// parameters are converted and bound, the interceptors' Before hooks run in
// declared order, the action is invoked, and the After hooks run in the
// same order. The first hook that returns a non-empty result ends the
// request with that result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/conduit-lang/weft/internal/router"
	"github.com/conduit-lang/weft/pkg/capability"
	"github.com/conduit-lang/weft/pkg/convert"
	"github.com/conduit-lang/weft/pkg/web"
)

// ErrNoConverter is returned when a bound parameter has neither a declared
// converter nor a default one for its type
var ErrNoConverter = errors.New("no converter")

// State is a step of the request state machine
type State int

const (
	StateStart State = iota
	StateContextInjected
	StateParametersBound
	StateInterceptorsBefore
	StateShortCircuited
	StateActionInvoked
	StateInterceptorsAfter
	StateDone
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateContextInjected:
		return "context_injected"
	case StateParametersBound:
		return "parameters_bound"
	case StateInterceptorsBefore:
		return "interceptors_before"
	case StateShortCircuited:
		return "short_circuited"
	case StateActionInvoked:
		return "action_invoked"
	case StateInterceptorsAfter:
		return "interceptors_after"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Phase names the part of the pipeline a failure happened in
type Phase string

const (
	PhaseBinding Phase = "binding"
	PhaseBefore  Phase = "before"
	PhaseAction  Phase = "action"
	PhaseAfter   Phase = "after"
)

// Error is a request-time failure of one handler
type Error struct {
	Handler string
	Phase   Phase
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Handler, e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PanicError is a recovered handler panic
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Input is what a request supplies to the pipeline
type Input struct {
	Contexts web.Contexts
	// Params holds the raw request values by parameter name
	Params map[string][]string
}

// Outcome is the result of a completed request
type Outcome struct {
	Result web.Result
	// Handler produced Result: the controller, or the interceptor that
	// short-circuited
	Handler     capability.Handler
	Controller  capability.Controller
	Action      string
	ContentType string
	State       State
}

// ShortCircuited reports whether an interceptor ended the request
func (o *Outcome) ShortCircuited() bool {
	return o.State == StateShortCircuited
}

// Observer is told about every executed request
type Observer interface {
	ObserveDispatch(handler, outcome string, elapsed time.Duration)
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithConverters sets the default converter registry
func WithConverters(r *convert.Registry) Option {
	return func(d *Dispatcher) { d.converters = r }
}

// WithObserver sets the request observer
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// Dispatcher executes requests against the live routing table
type Dispatcher struct {
	router     *router.Router
	converters *convert.Registry
	logger     *zap.Logger
	observer   Observer
	http       httpConfig
}

// New creates a dispatcher over r
func New(r *router.Router, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:     r,
		converters: convert.NewRegistry(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Router returns the router the dispatcher resolves against
func (d *Dispatcher) Router() *router.Router {
	return d.router
}

// Execute runs the pipeline for m. Handler failures, including panics, are
// returned as *Error; the context is only used for request-scoped logging.
func (d *Dispatcher) Execute(ctx context.Context, m *router.Match, in Input) (out *Outcome, err error) {
	start := time.Now()
	id := m.Entry.Type.Identity()
	logger := d.logger.With(zap.String("handler", id), zap.String("action", m.Action))
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With(zap.String("request_id", reqID))
	}

	defer func() {
		if d.observer == nil {
			return
		}
		outcome := "error"
		if err == nil {
			outcome = out.State.String()
		}
		d.observer.ObserveDispatch(id, outcome, time.Since(start))
	}()

	ctrl := m.Entry.Type.New()
	bound := m.Interceptors()
	interceptors := make([]capability.Interceptor, len(bound))
	for i, it := range bound {
		interceptors[i] = it.New()
	}

	capability.Inject(ctrl, in.Contexts)
	for _, ic := range interceptors {
		capability.Inject(ic, in.Contexts)
	}

	names := make([]string, 0, len(in.Params))
	for name := range in.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := d.bind(ctrl, names, in.Params, logger); err != nil {
		return nil, err
	}
	for _, ic := range interceptors {
		if err := d.bind(ic, names, in.Params, logger); err != nil {
			return nil, err
		}
	}

	outcome := &Outcome{Controller: ctrl, Action: m.Action}

	for _, ic := range interceptors {
		res, err := guard(ic.Identity(), PhaseBefore, func() (web.Result, error) { return ic.Before(), nil })
		if err != nil {
			return nil, err
		}
		if !web.Empty(res) {
			logger.Debug("request short-circuited", zap.String("interceptor", ic.Identity()), zap.String("phase", string(PhaseBefore)))
			outcome.Result = res
			outcome.Handler = ic
			outcome.ContentType = ic.BeforeContentType()
			outcome.State = StateShortCircuited
			return outcome, nil
		}
	}

	result, err := guard(id, PhaseAction, func() (web.Result, error) { return ctrl.InvokeAction(m.Action) })
	if err != nil {
		return nil, err
	}
	for _, ic := range interceptors {
		res, err := guard(ic.Identity(), PhaseAfter, func() (web.Result, error) { return ic.After(), nil })
		if err != nil {
			return nil, err
		}
		if !web.Empty(res) {
			logger.Debug("request short-circuited", zap.String("interceptor", ic.Identity()), zap.String("phase", string(PhaseAfter)))
			outcome.Result = res
			outcome.Handler = ic
			outcome.ContentType = ic.AfterContentType()
			outcome.State = StateShortCircuited
			return outcome, nil
		}
	}

	outcome.Result = result
	outcome.Handler = ctrl
	outcome.ContentType = ctrl.ContentType(m.Action)
	outcome.State = StateDone
	logger.Debug("request dispatched", zap.Duration("elapsed", time.Since(start)))
	return outcome, nil
}

// bind converts and sets every supplied value h declares. Names h does not
// declare are skipped.
func (d *Dispatcher) bind(h capability.Handler, names []string, params map[string][]string, logger *zap.Logger) error {
	_, err := guard(h.Identity(), PhaseBinding, func() (web.Result, error) {
		declared := make(map[string]bool)
		for _, p := range h.Parameters() {
			declared[p] = true
		}

		for _, name := range names {
			if !declared[name] {
				logger.Info("request parameter not declared by handler, skipped",
					zap.String("target", h.Identity()),
					zap.String("param", name))
				continue
			}

			typ := h.ParameterType(name)
			conv := h.ConverterFor(name)
			if conv == nil {
				c, ok := d.converters.Lookup(typ)
				if !ok {
					return nil, fmt.Errorf("%w for parameter %q of type %s", ErrNoConverter, name, typ)
				}
				conv = c
			}

			v, err := conv.Convert(params[name])
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
			if err := h.SetParameter(name, v); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// guard runs fn and turns returned errors and panics into *Error
func guard(handler string, phase Phase, fn func() (web.Result, error)) (res web.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			res = nil
			err = &Error{Handler: handler, Phase: phase, Err: &PanicError{Value: v, Stack: debug.Stack()}}
		}
	}()

	res, err = fn()
	if err != nil {
		return nil, &Error{Handler: handler, Phase: phase, Err: err}
	}
	return res, nil
}

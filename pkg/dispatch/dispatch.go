// Package dispatch implements the RPC method registry: a name→handler
// map invoked by the RPC protocol on every inbound call or notify. It is
// oblivious to which codec produced the call.
package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/fluxorio/relay/pkg/core"
	"github.com/fluxorio/relay/pkg/core/concurrency"
	"github.com/fluxorio/relay/pkg/deferred"
	relaymetrics "github.com/fluxorio/relay/pkg/observability/prometheus"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcerrors"
)

// HandlerFunc handles one call or notify. It may return a plain value,
// a *deferred.Deferred for asynchronous completion, or a non-nil error.
type HandlerFunc func(params []interface{}) (interface{}, error)

// Dispatcher is a name→handler registry. Registration is expected to
// happen at setup time, before the first inbound frame; Call only
// holds the lock long enough to look up the handler, not for the
// duration of its execution.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	metrics  *relaymetrics.Metrics
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// SetMetrics attaches a Prometheus registry this Dispatcher records
// handler-failure counts against. Optional: without one, Call behaves
// identically, just unobserved.
func (d *Dispatcher) SetMetrics(m *relaymetrics.Metrics) {
	d.mu.Lock()
	d.metrics = m
	d.mu.Unlock()
}

// Register binds fn under name. The last registration for a given name
// wins.
func (d *Dispatcher) Register(name string, fn HandlerFunc) {
	d.mu.Lock()
	d.handlers[name] = fn
	d.mu.Unlock()
}

// Call looks up name and invokes it with params. An unregistered name
// returns rpcerrors.UnknownMethod.
func (d *Dispatcher) Call(name string, params []interface{}) (interface{}, error) {
	d.mu.RLock()
	fn, ok := d.handlers[name]
	metrics := d.metrics
	d.mu.RUnlock()
	if !ok {
		if metrics != nil {
			metrics.RecordDispatchError(name)
		}
		return nil, rpcerrors.UnknownMethod
	}
	result, err := fn(params)
	if err != nil && metrics != nil {
		metrics.RecordDispatchError(name)
	}
	return result, err
}

// RegisterObject scans obj's exported struct fields for an `rpc:"name"`
// tag and registers every tagged function-valued field under that name.
// This is the idiomatic-Go analogue of the source's @remote decorator:
// Go cannot attach a tag to a method, so the tag instead marks a
// function-typed field assigned at construction time, e.g.:
//
//	type Adder struct {
//	    Add func(a, b int) (int, error) `rpc:"add"`
//	}
//
// RegisterObject is a setup-time operation; it is not safe to call
// concurrently with Call.
func (d *Dispatcher) RegisterObject(obj interface{}) error {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return fmt.Errorf("dispatch: RegisterObject: nil pointer")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("dispatch: RegisterObject: expected struct, got %s", v.Kind())
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, ok := field.Tag.Lookup("rpc")
		if !ok || name == "" {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() != reflect.Func || fv.IsNil() {
			return fmt.Errorf("dispatch: RegisterObject: field %s tagged rpc:%q is not a callable function", field.Name, name)
		}
		d.Register(name, reflectHandler(name, fv))
	}
	return nil
}

func reflectHandler(name string, fv reflect.Value) HandlerFunc {
	ft := fv.Type()
	return func(params []interface{}) (interface{}, error) {
		if ft.IsVariadic() {
			if len(params) < ft.NumIn()-1 {
				return nil, fmt.Errorf("dispatch: %s expects at least %d params, got %d", name, ft.NumIn()-1, len(params))
			}
		} else if len(params) != ft.NumIn() {
			return nil, fmt.Errorf("dispatch: %s expects %d params, got %d", name, ft.NumIn(), len(params))
		}

		args := make([]reflect.Value, len(params))
		for i, p := range params {
			var want reflect.Type
			if ft.IsVariadic() && i >= ft.NumIn()-1 {
				want = ft.In(ft.NumIn() - 1).Elem()
			} else {
				want = ft.In(i)
			}
			args[i] = coerce(p, want)
		}

		results := fv.Call(args)
		return splitResults(results)
	}
}

func coerce(p interface{}, want reflect.Type) reflect.Value {
	if p == nil {
		return reflect.Zero(want)
	}
	pv := reflect.ValueOf(p)
	if pv.Type().AssignableTo(want) {
		return pv
	}
	if pv.Type().ConvertibleTo(want) {
		return pv.Convert(want)
	}
	return pv
}

func splitResults(results []reflect.Value) (interface{}, error) {
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := results[0].Interface().(error); ok {
			return nil, err
		}
		return results[0].Interface(), nil
	default:
		last := results[len(results)-1]
		var err error
		if e, ok := last.Interface().(error); ok {
			err = e
		}
		return results[0].Interface(), err
	}
}

// RegisterAsync wraps fn so it runs on pool rather than the reactor
// goroutine, for handlers too CPU-heavy to run inline. pool may be a
// concurrency.Executor or a concurrency.WorkerPool — RegisterAsync only
// needs Submit. The registered handler always returns a
// *deferred.Deferred immediately; its eventual Succeed/Fail is posted
// back through r, so the reactor remains the single writer of RPC state
// even though the handler body ran elsewhere.
func RegisterAsync(d *Dispatcher, name string, fn HandlerFunc, pool concurrency.TaskSubmitter, r *reactor.Reactor, logger core.Logger) {
	d.Register(name, func(params []interface{}) (interface{}, error) {
		result := deferred.New(r, logger)

		task := concurrency.TaskFunc(func(ctx context.Context) error {
			value, err := fn(params)
			r.Post(func() {
				if err != nil {
					result.Fail(err)
				} else {
					result.Succeed(value)
				}
			})
			return err
		})

		if err := pool.Submit(task); err != nil {
			result.Fail(err)
		}
		return result, nil
	})
}

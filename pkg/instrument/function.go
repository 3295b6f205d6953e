package instrument

import (
	"context"
	"errors"
)

var (
	// ErrInterpreter marks a body failure the host already reported. The
	// profiler records it and continues with the next body.
	ErrInterpreter = errors.New("interpreter error")

	// ErrUnsupportedFunction is returned by Call for functions that are
	// neither script nor builtin functions. The host should run them itself.
	ErrUnsupportedFunction = errors.New("unsupported function kind")
)

// Flavor is the call semantics of a function construct.
type Flavor int

const (
	// FlavorFunction returns the value of its body.
	FlavorFunction Flavor = iota
	// FlavorEvent runs every body and returns nothing.
	FlavorEvent
	// FlavorHook runs bodies until one breaks and returns whether none did.
	FlavorHook
)

func (f Flavor) String() string {
	switch f {
	case FlavorEvent:
		return "event"
	case FlavorHook:
		return "hook"
	default:
		return "function"
	}
}

// Flow is how a body finished.
type Flow int

const (
	// FlowNext means the body fell off its end.
	FlowNext Flow = iota
	// FlowReturn means the body executed a return statement.
	FlowReturn
	// FlowBreak means a hook body asked to skip the remaining bodies.
	FlowBreak
	// FlowDelayed means the body suspended; the host resumes it later.
	FlowDelayed
)

// Outcome is what a body execution produced.
type Outcome struct {
	Flow     Flow
	Value    any
	HasValue bool
}

// Return is the outcome of a return statement carrying v.
func Return(v any) Outcome {
	return Outcome{Flow: FlowReturn, Value: v, HasValue: true}
}

// Frame is the host's opaque activation record.
type Frame any

// Location is a body's source position.
type Location struct {
	File string
	Line int
}

// Body is one implementation block of a function.
type Body struct {
	Location Location
	// Exec runs the body. An error wrapping ErrInterpreter is a recoverable
	// failure already reported by the host.
	Exec func(ctx context.Context, frame Frame) (Outcome, error)
}

// Function is a callable the host dispatches. Implementations are used as
// identity keys and must be comparable, typically pointers.
type Function interface {
	Name() string
	Flavor() Flavor
	// Yields reports whether the signature declares a return value.
	Yields() bool
}

// ScriptFunction is a function implemented by interpreted bodies.
type ScriptFunction interface {
	Function
	Bodies() []Body
}

// BuiltinFunction is a function implemented natively by the host.
type BuiltinFunction interface {
	Function
	Invoke(ctx context.Context, frame Frame) (Result, error)
}

// ResultKind tells a value apart from no value and from a suspended call.
type ResultKind int

const (
	ResultNone ResultKind = iota
	ResultValue
	ResultDelayed
)

// Result is what Call hands back to the host.
type Result struct {
	Kind  ResultKind
	Value any
}

// Value wraps v as a result.
func Value(v any) Result {
	return Result{Kind: ResultValue, Value: v}
}

// None is the result of a call that produced no value.
func None() Result {
	return Result{Kind: ResultNone}
}

// Delayed is the result of a call that suspended.
func Delayed() Result {
	return Result{Kind: ResultDelayed}
}

// Script is a ScriptFunction backed by fixed fields.
type Script struct {
	FuncName   string
	FuncFlavor Flavor
	Returns    bool
	Handlers   []Body
}

func (s *Script) Name() string   { return s.FuncName }
func (s *Script) Flavor() Flavor { return s.FuncFlavor }
func (s *Script) Yields() bool   { return s.Returns }
func (s *Script) Bodies() []Body { return s.Handlers }

// Builtin is a BuiltinFunction backed by a Go func.
type Builtin struct {
	FuncName string
	Returns  bool
	Fn       func(ctx context.Context, frame Frame) (Result, error)
}

func (b *Builtin) Name() string   { return b.FuncName }
func (b *Builtin) Flavor() Flavor { return FlavorFunction }
func (b *Builtin) Yields() bool   { return b.Returns }

func (b *Builtin) Invoke(ctx context.Context, frame Frame) (Result, error) {
	return b.Fn(ctx, frame)
}

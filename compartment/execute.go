package compartment

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/module"
)

// session is one top-level import. Instances linked by a session are executed
// by it; other sessions wait for them. Dynamic imports made while a module
// executes join the session carried in their context.
type session struct {
	claimed []*instance
	mu      sync.Mutex
}

type sessionKey struct{}

func newSession() *session { return &session{} }

func withSession(ctx context.Context, s *session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}

func (s *session) track(inst *instance) {
	s.mu.Lock()
	s.claimed = append(s.claimed, inst)
	s.mu.Unlock()
}

// finish hands instances the session linked but never executed back to
// whoever needs them next.
func (s *session) finish() {
	s.mu.Lock()
	claimed := s.claimed
	s.claimed = nil
	s.mu.Unlock()

	for _, inst := range claimed {
		inst.mu.Lock()
		if inst.state == StateLinking && inst.session == s {
			inst.session = nil
			close(inst.done)
			inst.done = make(chan struct{})
		}
		inst.mu.Unlock()
	}
}

// waitError marks a run aborted because the caller stopped waiting.
type waitError struct{ err error }

func (e *waitError) Error() string { return e.err.Error() }
func (e *waitError) Unwrap() error { return e.err }

// run executes inst's dependencies depth-first in declaration order, then
// inst itself. An instance already executing in the same session is part of
// a cycle and is treated as done.
func (inst *instance) run(ctx context.Context, sess *session) error {
	for {
		inst.mu.Lock()
		switch inst.state {
		case StateExecuted:
			inst.mu.Unlock()
			return nil
		case StateErrored:
			err := inst.err
			inst.mu.Unlock()
			return err
		case StateExecuting:
			if inst.session == sess {
				inst.mu.Unlock()
				return nil
			}
		case StateLinking:
			if inst.session == nil || inst.session == sess {
				if inst.session == nil {
					inst.session = sess
					sess.track(inst)
				}
				inst.state = StateExecuting
				inst.mu.Unlock()
				return inst.execute(ctx, sess)
			}
		default:
			inst.mu.Unlock()
			return errors.New(errors.PhaseExecute, errors.KindFailed).
				Specifier(inst.spec).
				Detail("module is %s", inst.state).
				Build()
		}

		done := inst.done
		inst.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return &waitError{ctx.Err()}
		}
	}
}

func (inst *instance) execute(ctx context.Context, sess *session) error {
	for _, dep := range inst.order {
		err := dep.run(ctx, sess)
		if err == nil {
			continue
		}
		var we *waitError
		if errors.As(err, &we) {
			inst.mu.Lock()
			inst.state = StateLinking
			inst.mu.Unlock()
			return err
		}
		return inst.fail(errors.New(errors.PhaseExecute, errors.KindDependency).
			Specifier(inst.spec).
			Detail("dependency %s failed", dep.spec).
			Cause(err).
			Build())
	}

	if err := inst.invoke(ctx); err != nil {
		if errors.PhaseOf(err) != errors.PhaseExecute {
			err = errors.Execution(inst.spec, err)
		}
		return inst.fail(err)
	}

	inst.mu.Lock()
	inst.state = StateExecuted
	inst.session = nil
	close(inst.done)
	inst.mu.Unlock()

	Logger().Debug("executed",
		zap.String("compartment", inst.c.id),
		zap.String("specifier", inst.spec))
	return nil
}

func (inst *instance) fail(err error) error {
	inst.mu.Lock()
	inst.state = StateErrored
	inst.err = err
	inst.session = nil
	close(inst.done)
	inst.mu.Unlock()

	Logger().Debug("execution failed",
		zap.String("compartment", inst.c.id),
		zap.String("specifier", inst.spec),
		zap.Error(err))
	return err
}

func (inst *instance) invoke(ctx context.Context) (err error) {
	exec := inst.unit.execute
	if exec == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(errors.PhaseExecute, inst.spec, r)
		}
	}()

	ec := module.ExecContext{Specifier: inst.spec}
	if inst.unit.needsImport {
		ec.Import = inst.dynamicImport
	}
	if inst.unit.needsImportMeta {
		ec.ImportMeta = inst.importMeta()
	}
	return exec(ctx, inst.env, ec)
}

// dynamicImport imports spec relative to inst. Called during execution it
// joins the running session; called later it starts a new one.
func (inst *instance) dynamicImport(ctx context.Context, spec string) (*module.Namespace, error) {
	full, err := inst.c.resolve(spec, inst.spec)
	if err != nil {
		return nil, err
	}
	return inst.c.Import(ctx, full)
}

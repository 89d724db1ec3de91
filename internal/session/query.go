package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/tabmix/mixer/internal/audio"
)

// ErrVolumeRange is returned by SetVolume for levels outside [0, 1].
var ErrVolumeRange = errors.New("session: volume must be within [0, 1]")

// QueryError reports a subsystem or enumeration failure.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// QueryService answers one-shot requests against the live session list.
// Every call opens the subsystem and enumerates afresh, so sessions that
// appeared or vanished between calls are always observed.
type QueryService struct {
	sys   audio.Subsystem
	names NameResolver
	log   *zap.SugaredLogger
}

// NewQueryService creates a QueryService. names may be nil.
func NewQueryService(sys audio.Subsystem, names NameResolver, log *zap.SugaredLogger) *QueryService {
	return &QueryService{sys: sys, names: names, log: log}
}

// List returns a snapshot of every session owned by a real process.
// Sessions that cannot be described are logged and left out.
func (q *QueryService) List(ctx context.Context) ([]Snapshot, error) {
	out := []Snapshot{}
	err := q.each("list", func(c audio.SessionControl) (bool, error) {
		snap, err := Describe(ctx, c, q.names)
		if err != nil {
			q.log.Debugw("skip session", "err", err)
			return false, nil
		}
		if snap.PID == 0 {
			return false, nil
		}
		out = append(out, snap)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetVolume sets the master volume of the session identified by (pid, uid).
// No matching session is not an error.
func (q *QueryService) SetVolume(ctx context.Context, pid uint32, uid string, level float32) error {
	// written this way round so NaN is rejected too
	if !(level >= 0 && level <= 1) {
		return ErrVolumeRange
	}
	return q.apply("setVolume", pid, uid, func(v audio.SimpleVolume) error {
		return v.SetMasterVolume(level)
	})
}

// SetMute sets the mute state of the session identified by (pid, uid). The
// subsystem is only called when the current state differs.
func (q *QueryService) SetMute(ctx context.Context, pid uint32, uid string, mute bool) error {
	return q.apply("setMute", pid, uid, func(v audio.SimpleVolume) error {
		cur, err := v.Mute()
		if err != nil {
			return fmt.Errorf("read mute: %w", err)
		}
		if cur == mute {
			return nil
		}
		return v.SetMute(mute)
	})
}

func (q *QueryService) apply(op string, pid uint32, uid string, fn func(audio.SimpleVolume) error) error {
	matched := false
	err := q.each(op, func(c audio.SessionControl) (bool, error) {
		p, u, err := Key(c)
		if err != nil {
			q.log.Debugw("skip session", "op", op, "err", err)
			return false, nil
		}
		if p == 0 || p != pid || u != uid {
			return false, nil
		}
		matched = true
		vol, ok := c.Volume()
		if !ok {
			return true, &QueryError{Op: op, Err: errNoVolume}
		}
		if err := fn(vol); err != nil {
			return true, &QueryError{Op: op, Err: err}
		}
		return true, nil
	})
	if err == nil && !matched {
		q.log.Debugw("no matching session", "op", op, "pid", pid, "uid", uid)
	}
	return err
}

// each opens the subsystem on a locked thread and calls fn with every
// enumerated session until fn reports stop. Handles are released after fn
// returns.
func (q *QueryService) each(op string, fn func(audio.SessionControl) (stop bool, err error)) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	mgr, err := q.sys.Open()
	if err != nil {
		return &QueryError{Op: op, Err: err}
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			q.log.Warnw("close session manager", "op", op, "err", err)
		}
	}()

	en, err := mgr.Enumerate()
	if err != nil {
		return &QueryError{Op: op, Err: err}
	}
	defer en.Release()

	n, err := en.Count()
	if err != nil {
		return &QueryError{Op: op, Err: err}
	}
	for i := 0; i < n; i++ {
		c, err := en.Session(i)
		if err != nil {
			q.log.Warnw("get session", "op", op, "index", i, "err", err)
			continue
		}
		stop, err := fn(c)
		c.Release()
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

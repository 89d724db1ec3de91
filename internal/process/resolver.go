// Package process resolves executable names for process ids. It is only a
// fallback for audio sessions that expose no display name of their own.
package process

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// Resolver looks up executable names from a point-in-time process snapshot.
type Resolver struct {
	list func(ctx context.Context) ([]*process.Process, error)
}

// NewResolver returns a Resolver backed by the system process table.
func NewResolver() *Resolver {
	return &Resolver{list: process.ProcessesWithContext}
}

// Resolve takes a fresh snapshot and returns the name of the first process
// whose id matches pid. It reports false when the snapshot cannot be taken,
// no process matches, or the match exited before its name could be read.
func (r *Resolver) Resolve(ctx context.Context, pid uint32) (string, bool) {
	procs, err := r.list(ctx)
	if err != nil {
		return "", false
	}
	for _, p := range procs {
		if uint32(p.Pid) != pid {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			return "", false
		}
		return name, true
	}
	return "", false
}

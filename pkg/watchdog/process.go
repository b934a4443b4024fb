package watchdog

import (
	"errors"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessTree adapts an OS process so that killing it also kills every
// descendant it spawned.
func ProcessTree(p *os.Process) Process {
	return &processTree{proc: p}
}

type processTree struct {
	proc *os.Process
}

func (t *processTree) Pid() int {
	return t.proc.Pid
}

// Kill terminates descendants deepest first, then the process itself.
// Killing a process that already exited is a no-op.
func (t *processTree) Kill() error {
	if root, err := process.NewProcess(int32(t.proc.Pid)); err == nil {
		killDescendants(root)
	}

	if err := t.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	return nil
}

func killDescendants(p *process.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}

	for _, child := range children {
		killDescendants(child)
		_ = child.Kill()
	}
}

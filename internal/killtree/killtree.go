package killtree

import (
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Escalation windows. Many server frameworks fork a watcher parent plus
// worker children; the whole snapshotted family gets SIGTERM first, then
// survivors are force-killed.
const (
	GraceWindow   = 5 * time.Second
	ConfirmWindow = 3 * time.Second
	pollInterval  = 100 * time.Millisecond
)

// Result reports what happened to the tree members.
type Result struct {
	Graceful int // exited within the grace window
	Forced   int // needed SIGKILL
	Residual int // still alive after the confirm window
}

// Killer terminates whole process trees.
type Killer interface {
	// TreeRoot walks parent links upward from pid while each parent's
	// executable name contains family, returning the topmost family
	// member. With an empty family it returns pid unchanged.
	TreeRoot(pid int, family string) int
	// Kill snapshots the descendants of rootPID, terminates the root
	// first and then every snapshotted member, waits, force-kills
	// survivors. A missing root is already clean and succeeds.
	Kill(rootPID int) (Result, error)
}

// Tree is the gopsutil-backed Killer.
type Tree struct{}

var _ Killer = Tree{}

func (Tree) TreeRoot(pid int, family string) int {
	if family == "" {
		return pid
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return pid
	}
	root := p
	for {
		parent, err := root.Parent()
		if err != nil || parent == nil {
			break
		}
		name, err := parent.Name()
		if err != nil || !strings.Contains(strings.ToLower(name), strings.ToLower(family)) {
			break
		}
		root = parent
	}
	return int(root.Pid)
}

func (Tree) Kill(rootPID int) (Result, error) {
	root, err := gopsproc.NewProcess(int32(rootPID))
	if err != nil {
		// Root is gone; nothing to do.
		return Result{}, nil
	}
	if procGone(root) {
		return Result{}, nil
	}

	// Snapshot the family at the moment of the call.
	members := []*gopsproc.Process{root}
	members = append(members, descendants(root)...)

	// Root first, then children.
	for _, m := range members {
		_ = m.Terminate()
	}

	gone, alive := waitProcs(members, GraceWindow)
	res := Result{Graceful: len(gone)}

	if len(alive) > 0 {
		for _, m := range alive {
			_ = m.Kill()
		}
		res.Forced = len(alive)
		_, still := waitProcs(alive, ConfirmWindow)
		res.Residual = len(still)
	}
	return res, nil
}

// descendants collects children recursively; errors along the way just
// truncate the snapshot.
func descendants(p *gopsproc.Process) []*gopsproc.Process {
	var out []*gopsproc.Process
	children, err := p.Children()
	if err != nil {
		return out
	}
	for _, c := range children {
		out = append(out, c)
		out = append(out, descendants(c)...)
	}
	return out
}

// procGone reports whether p has exited. A zombie is exited but not yet
// reaped by its parent, which on the signalling side counts as gone;
// IsRunning alone would report it as a survivor and stall the escalation
// windows for a process no signal can affect.
func procGone(p *gopsproc.Process) bool {
	running, err := p.IsRunning()
	if err != nil || !running {
		return true
	}
	statuses, err := p.Status()
	if err != nil {
		return false
	}
	for _, st := range statuses {
		if st == gopsproc.Zombie {
			return true
		}
	}
	return false
}

// waitProcs polls the set until everyone exited or the deadline passed.
func waitProcs(procs []*gopsproc.Process, window time.Duration) (gone, alive []*gopsproc.Process) {
	deadline := time.Now().Add(window)
	remaining := append([]*gopsproc.Process(nil), procs...)
	for time.Now().Before(deadline) && len(remaining) > 0 {
		var next []*gopsproc.Process
		for _, p := range remaining {
			if procGone(p) {
				gone = append(gone, p)
			} else {
				next = append(next, p)
			}
		}
		remaining = next
		if len(remaining) > 0 {
			time.Sleep(pollInterval)
		}
	}
	// Final sweep after the deadline.
	for _, p := range remaining {
		if procGone(p) {
			gone = append(gone, p)
		} else {
			alive = append(alive, p)
		}
	}
	return gone, alive
}

package export

import (
	"os"
	"os/exec"
	"syscall"
)

// CommandSpec describes one export invocation.
type CommandSpec struct {
	Path string
	Args []string
	Dir  string
}

// Process is a started export process that can be torn down as a unit.
type Process interface {
	// Terminate force-kills the whole process group and reaps the child.
	Terminate()
}

// Launcher starts the external export command. The default implementation
// uses os/exec; tests substitute their own.
type Launcher interface {
	Launch(spec CommandSpec) (Process, error)
}

type osLauncher struct{}

// NewLauncher returns the os/exec backed launcher.
func NewLauncher() Launcher {
	return &osLauncher{}
}

func (osLauncher) Launch(spec CommandSpec) (Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// The child gets its own process group so a later kill takes down the
	// whole tree, sudo wrapper included.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &osProcess{cmd: cmd}, nil
}

type osProcess struct {
	cmd *exec.Cmd
}

// Terminate kills the process group and reaps the child. The export binary
// is not trusted to exit on its own, so this runs unconditionally, and its
// wait result is ignored: the exit status means nothing here.
func (p *osProcess) Terminate() {
	// Negative pid addresses the whole process group.
	_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	_ = p.cmd.Wait()
}

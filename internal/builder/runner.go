// Package builder spawns and supervises the linux-tkg build subprocess,
// streaming its combined output line-by-line to the interactive surface.
package builder

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"kforge/internal/log"
	"kforge/internal/ops"
)

// linuxTkgRepo is the upstream build-script repository.
const linuxTkgRepo = "https://github.com/Frogging-Family/linux-tkg"

// Msg is the message set for one build run: any number of Line messages
// followed by exactly one Exit or SpawnError.
type Msg interface{ buildMsg() }

// Line is one line of subprocess output, stdout and stderr interleaved in
// arrival order.
type Line struct{ Text string }

// Exit is the terminal message for a process that spawned successfully.
// A killed process reports a negative code.
type Exit struct{ Code int }

// SpawnError is the terminal message when the process never started.
type SpawnError struct{ Reason string }

func (Line) buildMsg()       {}
func (Exit) buildMsg()       {}
func (SpawnError) buildMsg() {}

// Command describes a build invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// String renders the command the way a user would type it.
func (c Command) String() string {
	out := c.Name
	for _, a := range c.Args {
		out += " " + a
	}
	return out
}

// MakepkgCommand builds via makepkg on Arch-based systems.
func MakepkgCommand(dir string) Command {
	return Command{Name: "makepkg", Args: []string{"-si"}, Dir: dir}
}

// InstallScriptCommand builds via linux-tkg's install.sh on other distros.
func InstallScriptCommand(dir string) Command {
	return Command{Name: "./install.sh", Args: []string{"install"}, Dir: dir}
}

// CloneCommand fetches a shallow linux-tkg working copy into dest.
func CloneCommand(dest string) Command {
	return Command{Name: "git", Args: []string{"clone", "--depth=1", linuxTkgRepo, dest}}
}

// Handle is the polling endpoint for a running build. SendInput and Stop
// may be called from the interactive thread at any time.
type Handle struct {
	ID string
	*ops.Mailbox[Msg]

	mu    sync.Mutex
	stdin io.WriteCloser
	proc  *exec.Cmd
}

// SendInput writes a line to the subprocess stdin, for interactive
// prompts like makepkg confirmations.
func (h *Handle) SendInput(input string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stdin == nil {
		return fmt.Errorf("process stdin not available")
	}
	if _, err := fmt.Fprintln(h.stdin, input); err != nil {
		return fmt.Errorf("writing to build process: %w", err)
	}
	return nil
}

// Stop kills the subprocess. The run still terminates through its normal
// Exit message.
func (h *Handle) Stop() {
	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()
	if proc != nil && proc.Process != nil {
		log.Info(log.CatBuild, "killing build process", "op", h.ID, "pid", proc.Process.Pid)
		_ = proc.Process.Kill()
	}
}

func (h *Handle) setProcess(cmd *exec.Cmd, stdin io.WriteCloser) {
	h.mu.Lock()
	h.proc = cmd
	h.stdin = stdin
	h.mu.Unlock()
}

func (h *Handle) clearStdin() {
	h.mu.Lock()
	if h.stdin != nil {
		_ = h.stdin.Close()
		h.stdin = nil
	}
	h.mu.Unlock()
}

// Start dispatches a build command. The returned handle's mailbox carries
// Line messages until the process ends, then exactly one terminal message.
func Start(c Command) *Handle {
	handle := &Handle{ID: ops.NewID(), Mailbox: ops.NewMailbox[Msg]()}
	log.Info(log.CatBuild, "build dispatched", "op", handle.ID, "cmd", c.String(), "dir", c.Dir)

	go func() {
		defer handle.Close()

		cmd := exec.Command(c.Name, c.Args...)
		cmd.Dir = c.Dir

		stdin, err := cmd.StdinPipe()
		if err != nil {
			handle.Post(SpawnError{Reason: err.Error()})
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			handle.Post(SpawnError{Reason: err.Error()})
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			handle.Post(SpawnError{Reason: err.Error()})
			return
		}

		if err := cmd.Start(); err != nil {
			log.ErrorErr(log.CatBuild, "build spawn failed", err, "op", handle.ID)
			handle.Post(SpawnError{Reason: err.Error()})
			return
		}
		handle.setProcess(cmd, stdin)

		var wg sync.WaitGroup
		wg.Add(2)
		go streamLines(handle, stdout, &wg)
		go streamLines(handle, stderr, &wg)
		wg.Wait()

		handle.clearStdin()

		code := 0
		if err := cmd.Wait(); err != nil {
			code = -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			}
		}
		log.Info(log.CatBuild, "build finished", "op", handle.ID, "code", code)
		handle.Post(Exit{Code: code})
	}()

	return handle
}

// streamLines posts each output line to the mailbox. Both stream readers
// must return before the supervisor waits on the process.
func streamLines(handle *Handle, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		handle.Post(Line{Text: scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		log.Debug(log.CatBuild, "output scanner error", "op", handle.ID, "error", err)
	}
}

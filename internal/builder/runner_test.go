package builder

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitBuild(t *testing.T, handle *Handle, timeout time.Duration) []Msg {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var msgs []Msg
	for {
		msgs = append(msgs, handle.Drain()...)
		if handle.Exhausted() {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for build, got %d messages", len(msgs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func lines(msgs []Msg) []string {
	var out []string
	for _, m := range msgs {
		if l, ok := m.(Line); ok {
			out = append(out, l.Text)
		}
	}
	return out
}

func skipWithoutSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func TestStart_SpawnError(t *testing.T) {
	handle := Start(Command{Name: "/nonexistent/definitely-not-a-binary"})
	msgs := awaitBuild(t, handle, 2*time.Second)

	require.Len(t, msgs, 1)
	spawnErr, ok := msgs[0].(SpawnError)
	require.True(t, ok, "want SpawnError, got %T", msgs[0])
	assert.NotEmpty(t, spawnErr.Reason)
}

func TestStart_ExitCode(t *testing.T) {
	skipWithoutSh(t)

	handle := Start(Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	msgs := awaitBuild(t, handle, 5*time.Second)

	require.NotEmpty(t, msgs)
	exit, ok := msgs[len(msgs)-1].(Exit)
	require.True(t, ok, "want Exit, got %T", msgs[len(msgs)-1])
	assert.Equal(t, 3, exit.Code)
}

func TestStart_InterleavesBothStreams(t *testing.T) {
	skipWithoutSh(t)

	handle := Start(Command{
		Name: "sh",
		Args: []string{"-c", "echo out1; echo err1 1>&2; echo out2"},
	})
	msgs := awaitBuild(t, handle, 5*time.Second)

	got := lines(msgs)
	assert.ElementsMatch(t, []string{"out1", "err1", "out2"}, got)

	// Within a single stream, order is preserved.
	var stdout []string
	for _, l := range got {
		if l == "out1" || l == "out2" {
			stdout = append(stdout, l)
		}
	}
	assert.Equal(t, []string{"out1", "out2"}, stdout)

	exit, ok := msgs[len(msgs)-1].(Exit)
	require.True(t, ok)
	assert.Equal(t, 0, exit.Code)
}

func TestStart_TerminalMessageIsLast(t *testing.T) {
	skipWithoutSh(t)

	handle := Start(Command{Name: "sh", Args: []string{"-c", "echo a; echo b; exit 1"}})
	msgs := awaitBuild(t, handle, 5*time.Second)

	for _, m := range msgs[:len(msgs)-1] {
		_, isLine := m.(Line)
		assert.True(t, isLine, "non-terminal message %T before end", m)
	}
	exit, ok := msgs[len(msgs)-1].(Exit)
	require.True(t, ok)
	assert.Equal(t, 1, exit.Code)
}

func TestHandle_SendInput(t *testing.T) {
	skipWithoutSh(t)

	handle := Start(Command{Name: "sh", Args: []string{"-c", "read x; echo got:$x"}})

	// Stdin becomes available once the process spawns.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := handle.SendInput("hello"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stdin never became available")
		}
		time.Sleep(5 * time.Millisecond)
	}

	msgs := awaitBuild(t, handle, 5*time.Second)
	assert.Contains(t, lines(msgs), "got:hello")
	exit, ok := msgs[len(msgs)-1].(Exit)
	require.True(t, ok)
	assert.Equal(t, 0, exit.Code)
}

func TestHandle_SendInputAfterExit(t *testing.T) {
	skipWithoutSh(t)

	handle := Start(Command{Name: "sh", Args: []string{"-c", "true"}})
	awaitBuild(t, handle, 5*time.Second)

	err := handle.SendInput("too late")
	require.Error(t, err)
}

func TestHandle_Stop(t *testing.T) {
	skipWithoutSh(t)

	handle := Start(Command{Name: "sh", Args: []string{"-c", "sleep 30"}})

	// Let it spawn, then kill it.
	time.Sleep(100 * time.Millisecond)
	handle.Stop()

	msgs := awaitBuild(t, handle, 5*time.Second)
	exit, ok := msgs[len(msgs)-1].(Exit)
	require.True(t, ok, "want Exit, got %T", msgs[len(msgs)-1])
	assert.NotEqual(t, 0, exit.Code)
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "makepkg -si", MakepkgCommand("/work").String())
	assert.Equal(t, "/work", MakepkgCommand("/work").Dir)
	assert.Equal(t, "./install.sh install", InstallScriptCommand("/work").String())

	clone := CloneCommand("/work/linux-tkg")
	assert.Equal(t, "git", clone.Name)
	assert.Contains(t, clone.Args, "--depth=1")
	assert.Contains(t, clone.Args, "/work/linux-tkg")
}

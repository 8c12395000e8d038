package playback

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
)

// execPlayer hands an undecodable audio buffer to an external system
// player, the last-resort path when the in-process MP3 decode fails.
// The buffer is written to a temp file and the player is killed on Stop.
type execPlayer struct {
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	cmd     *exec.Cmd
}

func newExecPlayer(logger *slog.Logger) *execPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &execPlayer{logger: logger.With("component", "playback.exec")}
}

// playerCommand returns the platform audio player invocation for a file.
func playerCommand(path string) *exec.Cmd {
	if runtime.GOOS == "darwin" {
		return exec.Command("afplay", path)
	}
	return exec.Command("mpg123", "-q", path)
}

// Play writes the buffer to a temp file and plays it with the system
// player, blocking until playback completes or Stop is called.
func (p *execPlayer) Play(data []byte) error {
	f, err := os.CreateTemp("", "voiceform-*.mp3")
	if err != nil {
		return fmt.Errorf("playback: temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("playback: write temp file: %w", err)
	}
	f.Close()

	cmd := playerCommand(path)

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.cmd = cmd
	p.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("playback: start system player: %w", err)
	}

	err = cmd.Wait()

	p.mu.Lock()
	stopped := p.stopped
	p.cmd = nil
	p.mu.Unlock()

	if stopped {
		return nil
	}
	if err != nil {
		return fmt.Errorf("playback: system player: %w", err)
	}
	return nil
}

// Stop kills the player process if one is running.
func (p *execPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
}

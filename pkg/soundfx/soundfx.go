// Package soundfx plays named sound effects from a library directory.
// Effects are short WAV files ("yeehaw", "whinny") referenced by name in
// dialogue actions; the available names are advertised to the dialogue
// engine so it only asks for sounds that exist.
package soundfx

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/teslashibe/go-astro/internal/log"
)

// Player plays a named sound effect. With wait set, Play blocks until the
// effect finishes; the dispatch sequencer always waits because the audio
// device is exclusive during a turn.
type Player interface {
	Play(name string, wait bool) error
}

// Library is a Player backed by a directory of WAV files.
type Library struct {
	dir string

	mu    sync.Mutex
	names []string
}

// NewLibrary scans dir for effects. A missing or empty directory is not an
// error; the library is just empty.
func NewLibrary(dir string) *Library {
	l := &Library{dir: dir}
	l.rescan()
	return l
}

// rescan refreshes the cached effect names.
func (l *Library) rescan() {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		log.Debug("sound library not readable", "dir", l.dir, "error", err)
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		}
	}
	sort.Strings(names)

	l.mu.Lock()
	l.names = names
	l.mu.Unlock()
}

// Available returns the effect names, sorted.
func (l *Library) Available() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

// Play implements Player using aplay.
func (l *Library) Play(name string, wait bool) error {
	path := filepath.Join(l.dir, name+".wav")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("soundfx: unknown effect %q: %w", name, err)
	}

	cmd := exec.Command("aplay", "-q", path)
	if !wait {
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("soundfx: starting %q: %w", name, err)
		}
		go cmd.Wait()
		return nil
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("soundfx: playing %q: %w", name, err)
	}
	return nil
}

// Mock implements Player for testing, recording every call.
type Mock struct {
	// PlayFunc is called when Play is invoked. If nil, Play records the
	// call and returns nil.
	PlayFunc func(name string, wait bool) error

	mu    sync.Mutex
	plays []string
}

// Play implements Player.
func (m *Mock) Play(name string, wait bool) error {
	m.mu.Lock()
	m.plays = append(m.plays, name)
	m.mu.Unlock()

	if m.PlayFunc != nil {
		return m.PlayFunc(name, wait)
	}
	return nil
}

// Plays returns the effect names played, in order.
func (m *Mock) Plays() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.plays...)
}

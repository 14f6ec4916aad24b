// Package bridgefile manages the bridge's four plain-text operational
// state files (spec.md §3): start_file, open_file, dred_file and
// dgreen_file. Reads are served from an in-memory cache invalidated by
// an fsnotify watch on the containing directory rather than a stat on
// every access (see DESIGN.md), and writes are atomic (temp file +
// rename), per DESIGN NOTES §9.
package bridgefile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/barbapulpe/xmppapbridge/internal/blog"
	"github.com/fsnotify/fsnotify"
)

// Token values for the two single-token state files.
const (
	Start = "START"
	Stop  = "STOP"
	Open  = "OPEN"
	Close = "CLOSE"
)

// Files caches and serves the four state files rooted at dir.
type Files struct {
	dir string

	startPath string
	openPath  string
	redPath   string
	greenPath string

	mu        sync.RWMutex
	startTok  string
	openTok   string
	redList   []string
	greenList []string

	watcher *fsnotify.Watcher
}

// Open creates the four files with header comments if missing, loads
// them into the in-memory cache, and starts watching dir for
// out-of-band edits.
func Open(dir string) (*Files, error) {
	f := &Files{
		dir:       dir,
		startPath: filepath.Join(dir, "start_file"),
		openPath:  filepath.Join(dir, "open_file"),
		redPath:   filepath.Join(dir, "dred_file"),
		greenPath: filepath.Join(dir, "dgreen_file"),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bridge files dir: %w", err)
	}
	if err := ensureTokenFile(f.startPath, Start, "# relay state: START or STOP"); err != nil {
		return nil, err
	}
	if err := ensureTokenFile(f.openPath, Open, "# registration state: OPEN or CLOSE"); err != nil {
		return nil, err
	}
	if err := ensureListFile(f.redPath, "# domain redlist, one domain per line"); err != nil {
		return nil, err
	}
	if err := ensureListFile(f.greenPath, "# domain greenlist, one domain per line"); err != nil {
		return nil, err
	}
	if err := f.reload(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch bridge files dir: %w", err)
	}
	f.watcher = w
	go f.watchLoop()
	return f, nil
}

// Close stops the watcher goroutine.
func (f *Files) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

func (f *Files) watchLoop() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if err := f.reload(); err != nil {
					blog.Errorf("bridgefile: reload after %s: %v", ev.Name, err)
				}
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			blog.Errorf("bridgefile: watch error: %v", err)
		}
	}
}

func (f *Files) reload() error {
	startTok, err := readTokenFile(f.startPath, Start)
	if err != nil {
		return err
	}
	openTok, err := readTokenFile(f.openPath, Open)
	if err != nil {
		return err
	}
	red, err := readListFile(f.redPath)
	if err != nil {
		return err
	}
	green, err := readListFile(f.greenPath)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.startTok, f.openTok, f.redList, f.greenList = startTok, openTok, red, green
	f.mu.Unlock()
	return nil
}

// Started reports whether the relay is currently allowed to run.
func (f *Files) Started() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.startTok == Start
}

// SetStarted writes Start or Stop to start_file.
func (f *Files) SetStarted(started bool) error {
	tok := Stop
	if started {
		tok = Start
	}
	if err := writeTokenFile(f.startPath, tok, "# relay state: START or STOP"); err != nil {
		return err
	}
	f.mu.Lock()
	f.startTok = tok
	f.mu.Unlock()
	return nil
}

// RegistrationOpen reports whether new registrations are accepted.
func (f *Files) RegistrationOpen() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.openTok == Open
}

// SetRegistrationOpen writes Open or Close to open_file.
func (f *Files) SetRegistrationOpen(open bool) error {
	tok := Close
	if open {
		tok = Open
	}
	if err := writeTokenFile(f.openPath, tok, "# registration state: OPEN or CLOSE"); err != nil {
		return err
	}
	f.mu.Lock()
	f.openTok = tok
	f.mu.Unlock()
	return nil
}

// Redlist returns a copy of the current domain redlist.
func (f *Files) Redlist() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.redList...)
}

// Greenlist returns a copy of the current domain greenlist.
func (f *Files) Greenlist() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.greenList...)
}

// IsRedlisted reports whether domain is on the redlist.
func (f *Files) IsRedlisted(domain string) bool {
	return contains(f.Redlist(), domain)
}

// IsGreenlisted reports whether domain is on the greenlist.
func (f *Files) IsGreenlisted(domain string) bool {
	return contains(f.Greenlist(), domain)
}

// AddRed appends domain to the redlist (deduplicated).
func (f *Files) AddRed(domain string) error {
	return f.addToList(f.redPath, domain, "# domain redlist, one domain per line")
}

// AddGreen appends domain to the greenlist (deduplicated).
func (f *Files) AddGreen(domain string) error {
	return f.addToList(f.greenPath, domain, "# domain greenlist, one domain per line")
}

// RemoveRed removes domain from the redlist.
func (f *Files) RemoveRed(domain string) error {
	return f.removeFromList(f.redPath, domain, "# domain redlist, one domain per line")
}

// RemoveGreen removes domain from the greenlist.
func (f *Files) RemoveGreen(domain string) error {
	return f.removeFromList(f.greenPath, domain, "# domain greenlist, one domain per line")
}

func (f *Files) addToList(path, domain, header string) error {
	cur, err := readListFile(path)
	if err != nil {
		return err
	}
	if contains(cur, domain) {
		return f.reload()
	}
	cur = append(cur, domain)
	if err := writeListFile(path, cur, header); err != nil {
		return err
	}
	return f.reload()
}

func (f *Files) removeFromList(path, domain, header string) error {
	cur, err := readListFile(path)
	if err != nil {
		return err
	}
	out := cur[:0]
	for _, d := range cur {
		if d != domain {
			out = append(out, d)
		}
	}
	if err := writeListFile(path, out, header); err != nil {
		return err
	}
	return f.reload()
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func ensureTokenFile(path, defaultTok, header string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeTokenFile(path, defaultTok, header)
}

func ensureListFile(path, header string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeListFile(path, nil, header)
}

func readTokenFile(path, fallback string) (string, error) {
	lines, err := readListFile(path)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return fallback, nil
	}
	return lines[0], nil
}

func writeTokenFile(path, tok, header string) error {
	return atomicWrite(path, header+"\n"+tok+"\n")
}

func readListFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var out []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func writeListFile(path string, lines []string, header string) error {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n")
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	return atomicWrite(path, sb.String())
}

// atomicWrite writes content to path via a temp file + rename, so a
// concurrent reader never observes a torn write.
func atomicWrite(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

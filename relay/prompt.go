package relay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultSystemPrompt keeps the assistant on authorized, educational security work.
const defaultSystemPrompt = `You are a strictly ethical hacking assistant specialized in providing guidance and commands related to ethical hacking using Kali Linux.

IMPORTANT ETHICAL GUIDELINES:
1. Only provide information for legal, ethical purposes such as security research, authorized penetration testing, education, and improving system security.
2. Refuse any activity that could harm systems without authorization, steal data, cause damage, or break the law.
3. Always stress that proper written authorization is required before any security test.
4. Include a note on the legal implications and required permissions when giving commands or techniques.
5. When describing tools or techniques, explain their legitimate use cases and how they could be misused.
6. Never give guidance whose primary use is malicious.

Your purpose is to educate and assist in ethical security practice only. When in doubt, choose ethics and legality over completeness.`

// systemPrompt holds the instruction sent ahead of every conversation.
// When backed by a file, edits to the file take effect without a restart.
type systemPrompt struct {
	mu   sync.RWMutex
	text string

	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *zap.Logger
}

func newSystemPrompt(path string, logger *zap.Logger) (*systemPrompt, error) {
	p := &systemPrompt{text: defaultSystemPrompt, path: path, logger: logger}
	if path == "" {
		return p, nil
	}

	if err := p.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt watcher: %w", err)
	}
	// Watch the directory: editors replace files rather than writing in place
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	p.watcher = watcher
	p.done = make(chan struct{})
	go p.watch()

	return p, nil
}

// Get returns the current prompt text.
func (p *systemPrompt) Get() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

func (p *systemPrompt) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read system prompt: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fmt.Errorf("system prompt file %s is empty", p.path)
	}

	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
	return nil
}

func (p *systemPrompt) watch() {
	target := filepath.Clean(p.path)
	for {
		select {
		case <-p.done:
			return

		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Keep serving the previous prompt if the new one is unreadable
			if err := p.reload(); err != nil {
				p.logger.Warn("system prompt reload failed", zap.Error(err))
				continue
			}
			p.logger.Info("system prompt reloaded", zap.String("path", p.path))

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("system prompt watcher error", zap.Error(err))
		}
	}
}

// Close stops watching the prompt file.
func (p *systemPrompt) Close() error {
	if p.watcher == nil {
		return nil
	}
	close(p.done)
	return p.watcher.Close()
}

package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/codexlotus/lotusrag/internal/ui"
)

// spinner displays an animated status line until stopped.
type spinner struct {
	mu      sync.Mutex
	message string

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// newSpinner starts a spinner showing message.
func newSpinner(message string) *spinner {
	s := &spinner{
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// SetMessage replaces the text shown next to the spinner.
func (s *spinner) SetMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop clears the spinner line and waits for it to exit.
func (s *spinner) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *spinner) run() {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(s.done)

	i := 0
	for {
		select {
		case <-s.stop:
			// Clear spinner line
			fmt.Print("\r\033[2K")
			return
		case <-ticker.C:
			s.mu.Lock()
			message := s.message
			s.mu.Unlock()
			fmt.Printf("\r\033[2K%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}

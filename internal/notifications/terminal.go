package notifications

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Terminal renders download progress as progress bars on w. The CLI uses it
// for foreground downloads.
type Terminal struct {
	out io.Writer

	mu   sync.Mutex
	bars map[int64]*progressbar.ProgressBar
}

// NewTerminal returns a terminal sink writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, bars: make(map[int64]*progressbar.ProgressBar)}
}

// Publish implements Service.
func (t *Terminal) Publish(_ context.Context, event Event, payload Payload) error {
	id := payload.Int64("id")
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event {
	case EventDownloadProgress:
		total := payload.Int("total")
		bar, ok := t.bars[id]
		if !ok {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(t.out),
				progressbar.OptionSetDescription(describe(id, payload.String("title"))),
				progressbar.OptionShowCount(),
				progressbar.OptionSetItsString("pages"),
				progressbar.OptionClearOnFinish(),
			)
			t.bars[id] = bar
		}
		return bar.Set(payload.Int("current"))
	case EventDownloadCompleted:
		if bar, ok := t.bars[id]; ok {
			_ = bar.Finish()
			delete(t.bars, id)
		}
		_, err := fmt.Fprintf(t.out, "completed %s (%d pages)\n", describe(id, payload.String("title")), payload.Int("total"))
		return err
	case EventDownloadFailed:
		if bar, ok := t.bars[id]; ok {
			_ = bar.Exit()
			delete(t.bars, id)
		}
		_, err := fmt.Fprintf(t.out, "\nfailed %s: %s\n", describe(id, payload.String("title")), payload.String("error"))
		return err
	case EventExportCompleted:
		_, err := fmt.Fprintf(t.out, "exported %s to %s\n", describe(id, payload.String("title")), payload.String("path"))
		return err
	}
	return nil
}

func describe(id int64, title string) string {
	if title == "" {
		return fmt.Sprintf("#%d", id)
	}
	return fmt.Sprintf("#%d %s", id, title)
}

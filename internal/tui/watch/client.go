package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bioplatforms/bpaworkflow/internal/api"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
)

// Source is the server API the view reads from.
type Source interface {
	Stream(ctx context.Context, id string, fn func(jobstate.Status)) error
	Health(ctx context.Context) (api.HealthzResponse, error)
}

// --- Message types ---

type statusMsg jobstate.Status

type healthMsg api.HealthzResponse

type tickMsg time.Time

type errMsg error

// streamEndedMsg is sent when the status stream closes.
type streamEndedMsg struct{ err error }

type reconnectMsg struct{}

// --- Commands ---

// streamStatus follows the submission and feeds statuses into ch. It returns
// streamEndedMsg when the stream closes.
func streamStatus(ctx context.Context, src Source, id string, ch chan<- jobstate.Status) tea.Cmd {
	return func() tea.Msg {
		err := src.Stream(ctx, id, func(st jobstate.Status) {
			select {
			case ch <- st:
			case <-ctx.Done():
			}
		})
		return streamEndedMsg{err: err}
	}
}

// receiveNextStatus waits for the next status from the channel.
func receiveNextStatus(ch <-chan jobstate.Status) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-ch)
	}
}

func fetchHealth(ctx context.Context, src Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		h, err := src.Health(ctx)
		if err != nil {
			return errMsg(err)
		}
		return healthMsg(h)
	}
}

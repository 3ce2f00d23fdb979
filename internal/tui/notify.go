package tui

import tea "github.com/charmbracelet/bubbletea"

// ChangedMsg tells the App that the browser has a new snapshot.
type ChangedMsg struct{}

// Notifier forwards browser change callbacks to a running program.
// Notify never blocks: bursts collapse into a single pending ChangedMsg,
// so scheduler workers and the search debouncer are never held up by a
// busy Update loop.
type Notifier struct {
	kick chan struct{}
	stop chan struct{}
}

// NewNotifier creates an idle notifier. Call Run once the program exists.
func NewNotifier() *Notifier {
	return &Notifier{
		kick: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Notify schedules a ChangedMsg. Safe from any goroutine.
func (n *Notifier) Notify() {
	select {
	case n.kick <- struct{}{}:
	default:
	}
}

// Run delivers pending notifications to p until Stop is called.
func (n *Notifier) Run(p interface{ Send(tea.Msg) }) {
	for {
		select {
		case <-n.kick:
			p.Send(ChangedMsg{})
		case <-n.stop:
			return
		}
	}
}

// Stop ends Run. Call it once.
func (n *Notifier) Stop() {
	close(n.stop)
}

// Package monitor runs detection cycles: an explicit phase machine per
// session, bounded fan-out over the source registry, and persist-before-work
// progress reporting so an external poller never observes a phase that has
// not actually started.
package monitor

// Phase is one step of a monitoring session. Transitions are explicit; any
// phase may fall into PhaseFailed but never anywhere else out of order.
type Phase string

const (
	PhasePending              Phase = "pending"
	PhaseInitializing         Phase = "initializing"
	PhaseScrapingNews         Phase = "scraping_news"
	PhaseProcessingNews       Phase = "processing_news"
	PhaseScrapingSocial       Phase = "scraping_social"
	PhaseProcessingSocial     Phase = "processing_social"
	PhaseUpdatingSourceHealth Phase = "updating_source_health"
	PhasePersistingAlerts     Phase = "persisting_alerts"
	PhaseCompleted            Phase = "completed"
	PhaseFailed               Phase = "failed"
)

// Session statuses as stored in monitoring_sessions.status.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var phaseOrder = map[Phase]Phase{
	PhasePending:              PhaseInitializing,
	PhaseInitializing:         PhaseScrapingNews,
	PhaseScrapingNews:         PhaseProcessingNews,
	PhaseProcessingNews:       PhaseScrapingSocial,
	PhaseScrapingSocial:       PhaseProcessingSocial,
	PhaseProcessingSocial:     PhaseUpdatingSourceHealth,
	PhaseUpdatingSourceHealth: PhasePersistingAlerts,
	PhasePersistingAlerts:     PhaseCompleted,
}

var phaseProgress = map[Phase]int{
	PhasePending:              0,
	PhaseInitializing:         5,
	PhaseScrapingNews:         15,
	PhaseProcessingNews:       35,
	PhaseScrapingSocial:       55,
	PhaseProcessingSocial:     75,
	PhaseUpdatingSourceHealth: 85,
	PhasePersistingAlerts:     95,
	PhaseCompleted:            100,
}

// CanTransition reports whether from -> to is a legal step. PhaseFailed is
// reachable from every non-terminal phase.
func CanTransition(from, to Phase) bool {
	if from == PhaseCompleted || from == PhaseFailed {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	return phaseOrder[from] == to
}

// Progress is the reported percentage when the phase begins. PhaseFailed has
// no progress of its own: a failed session keeps the progress it reached.
func (p Phase) Progress() int {
	return phaseProgress[p]
}

func (p Phase) Status() string {
	switch p {
	case PhasePending:
		return StatusPending
	case PhaseCompleted:
		return StatusCompleted
	case PhaseFailed:
		return StatusFailed
	default:
		return StatusRunning
	}
}

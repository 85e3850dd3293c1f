package workflow

import (
	"log/slog"
	"time"
)

// Observer receives execution lifecycle events. Implementations must not
// block; the engine calls them inline.
type Observer interface {
	NodeStarted(workflowID, nodeID string, nodeType NodeType)
	NodeCompleted(workflowID, nodeID string, nodeType NodeType, took time.Duration, err error)
	EdgeEvaluated(workflowID, edgeID string, taken bool)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) NodeStarted(string, string, NodeType)                         {}
func (NopObserver) NodeCompleted(string, string, NodeType, time.Duration, error) {}
func (NopObserver) EdgeEvaluated(string, string, bool)                           {}

// LogObserver writes events to a structured logger at debug level.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) NodeStarted(workflowID, nodeID string, nodeType NodeType) {
	o.Logger.Debug("node started", "workflow", workflowID, "node", nodeID, "type", string(nodeType))
}

func (o LogObserver) NodeCompleted(workflowID, nodeID string, nodeType NodeType, took time.Duration, err error) {
	if err != nil {
		o.Logger.Debug("node failed", "workflow", workflowID, "node", nodeID, "type", string(nodeType), "took", took, "error", err)
		return
	}
	o.Logger.Debug("node completed", "workflow", workflowID, "node", nodeID, "type", string(nodeType), "took", took)
}

func (o LogObserver) EdgeEvaluated(workflowID, edgeID string, taken bool) {
	o.Logger.Debug("edge evaluated", "workflow", workflowID, "edge", edgeID, "taken", taken)
}

// multiObserver fans events out to several observers.
type multiObserver []Observer

func (m multiObserver) NodeStarted(w, n string, t NodeType) {
	for _, o := range m {
		o.NodeStarted(w, n, t)
	}
}

func (m multiObserver) NodeCompleted(w, n string, t NodeType, d time.Duration, err error) {
	for _, o := range m {
		o.NodeCompleted(w, n, t, d, err)
	}
}

func (m multiObserver) EdgeEvaluated(w, e string, taken bool) {
	for _, o := range m {
		o.EdgeEvaluated(w, e, taken)
	}
}

// CombineObservers merges observers, skipping nils.
func CombineObservers(obs ...Observer) Observer {
	var out multiObserver
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return NopObserver{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

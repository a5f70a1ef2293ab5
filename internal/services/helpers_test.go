package services

import (
	"sync"

	"github.com/Creecly/cleaninvest/internal/notify"
	"github.com/Creecly/cleaninvest/internal/valuation"
)

// fixedSource makes every simulated price draw return the same value.
type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

// midPricer executes buys at exactly the base price and values positions at
// 2.455x their cost basis.
func midPricer() *valuation.Pricer {
	return valuation.NewPricer(fixedSource(0.5))
}

// recordingMailer collects queued messages.
type recordingMailer struct {
	mu   sync.Mutex
	msgs []notify.Message
	full bool
}

func (m *recordingMailer) Enqueue(msg notify.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return false
	}
	m.msgs = append(m.msgs, msg)
	return true
}

func (m *recordingMailer) sent() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Message(nil), m.msgs...)
}

// nopAudit discards audit events.
type nopAudit struct{}

func (nopAudit) Log(string, string, string, string, string, map[string]interface{}) {}

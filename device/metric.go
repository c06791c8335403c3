package device

import "sync/atomic"

// ConnMetrics contains atomic counters for one device connection.
// They are safe to read concurrently, e.g. as prometheus CounterFunc values.
type ConnMetrics struct {
	// ExchangeCount is the number of completed exchanges.
	ExchangeCount atomic.Uint64
	// TimeoutCount is the number of exchanges that ended in a reply timeout.
	TimeoutCount atomic.Uint64
	// IOErrCount is the number of exchanges that ended in a read/write error.
	IOErrCount atomic.Uint64
	// ReconnectCount is the number of successful reconnects.
	ReconnectCount atomic.Uint64
	// ReconnectFailCount is the number of failed reconnect attempts.
	ReconnectFailCount atomic.Uint64
}

func (m *ConnMetrics) incExchangeCount() {
	m.ExchangeCount.Add(1)
}

func (m *ConnMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *ConnMetrics) incIOErrCount() {
	m.IOErrCount.Add(1)
}

func (m *ConnMetrics) incReconnectCount() {
	m.ReconnectCount.Add(1)
}

func (m *ConnMetrics) incReconnectFailCount() {
	m.ReconnectFailCount.Add(1)
}

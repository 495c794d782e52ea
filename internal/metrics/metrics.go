package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mutex         sync.RWMutex
	rounds        int64
	failedRounds  int64
	winnerChanges int64
	wins          map[string]int64
	unreachable   map[string]int64
	scores        map[string][]time.Duration
	lastScore     map[string]time.Duration
	accepted      int64
	dropped       int64
	dialFailures  int64
	closed        int64
	bytesUp       int64
	bytesDown     int64
	startTime     time.Time
}

type Snapshot struct {
	Uptime        time.Duration            `json:"uptime"`
	Rounds        int64                    `json:"rounds"`
	FailedRounds  int64                    `json:"failed_rounds"`
	WinnerChanges int64                    `json:"winner_changes"`
	Targets       map[string]TargetMetrics `json:"targets"`
	Connections   ConnectionMetrics        `json:"connections"`
}

type TargetMetrics struct {
	Wins        int64         `json:"wins"`
	Unreachable int64         `json:"unreachable"`
	LastScore   time.Duration `json:"last_score"`
	MinScore    time.Duration `json:"min_score"`
	MaxScore    time.Duration `json:"max_score"`
	AvgScore    time.Duration `json:"avg_score"`
}

type ConnectionMetrics struct {
	Accepted     int64 `json:"accepted"`
	Dropped      int64 `json:"dropped"`
	DialFailures int64 `json:"dial_failures"`
	Closed       int64 `json:"closed"`
	BytesUp      int64 `json:"bytes_up"`
	BytesDown    int64 `json:"bytes_down"`
}

func (m *Metrics) RecordRound(winner string, changed bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rounds++
	m.wins[winner]++
	if changed {
		m.winnerChanges++
	}
}

func (m *Metrics) RecordFailedRound() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rounds++
	m.failedRounds++
}

func (m *Metrics) RecordScore(target string, score time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.scores[target] = append(m.scores[target], score)
	if len(m.scores[target]) > 1000 {
		m.scores[target] = m.scores[target][1:]
	}
	m.lastScore[target] = score
}

func (m *Metrics) RecordUnreachable(target string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.unreachable[target]++
}

func (m *Metrics) RecordAccepted() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.accepted++
}

func (m *Metrics) RecordDropped() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dropped++
}

func (m *Metrics) RecordDialFailure() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dialFailures++
}

func (m *Metrics) RecordClosed(bytesUp, bytesDown int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed++
	m.bytesUp += bytesUp
	m.bytesDown += bytesDown
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:        time.Since(m.startTime),
		Rounds:        m.rounds,
		FailedRounds:  m.failedRounds,
		WinnerChanges: m.winnerChanges,
		Targets:       make(map[string]TargetMetrics),
		Connections: ConnectionMetrics{
			Accepted:     m.accepted,
			Dropped:      m.dropped,
			DialFailures: m.dialFailures,
			Closed:       m.closed,
			BytesUp:      m.bytesUp,
			BytesDown:    m.bytesDown,
		},
	}

	allTargets := make(map[string]bool)
	for target := range m.wins {
		allTargets[target] = true
	}
	for target := range m.unreachable {
		allTargets[target] = true
	}
	for target := range m.scores {
		allTargets[target] = true
	}

	for target := range allTargets {
		tm := TargetMetrics{
			Wins:        m.wins[target],
			Unreachable: m.unreachable[target],
			LastScore:   m.lastScore[target],
		}

		scores := m.scores[target]
		if len(scores) > 0 {
			tm.MinScore = scores[0]
			tm.MaxScore = scores[0]

			var sum time.Duration
			for _, s := range scores {
				sum += s
				if s < tm.MinScore {
					tm.MinScore = s
				}
				if s > tm.MaxScore {
					tm.MaxScore = s
				}
			}
			tm.AvgScore = sum / time.Duration(len(scores))
		}

		snap.Targets[target] = tm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		wins:        make(map[string]int64),
		unreachable: make(map[string]int64),
		scores:      make(map[string][]time.Duration),
		lastScore:   make(map[string]time.Duration),
		startTime:   time.Now(),
	}
}

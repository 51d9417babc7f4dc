package board

import "math"

type Stats struct {
	Tickets  int           `json:"tickets"`
	PerPhase map[int64]int `json:"per_phase"`
	// Progress is the share of tickets sitting in the last phase, 0..100.
	Progress int `json:"progress"`
}

func Summary(b Board) Stats {
	s := Stats{PerPhase: make(map[int64]int, len(b.Phases))}
	for _, p := range b.Phases {
		s.PerPhase[p.ID] = len(p.Tickets)
		s.Tickets += len(p.Tickets)
	}
	if s.Tickets == 0 {
		return s
	}
	done := len(b.Phases[len(b.Phases)-1].Tickets)
	s.Progress = int(math.Round(100 * float64(done) / float64(s.Tickets)))
	return s
}

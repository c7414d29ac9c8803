package pipeline

// StageSummary is a StageResult with its duration in milliseconds.
type StageSummary struct {
	Index      int    `json:"index"`
	StageID    string `json:"stage_id"`
	Name       string `json:"name"`
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
}

// Summary is the transport view of a Result.
type Summary struct {
	RequestID  string         `json:"request_id"`
	Outcome    Outcome        `json:"outcome"`
	Output     string         `json:"output,omitempty"`
	Stages     []StageSummary `json:"stages"`
	DurationMs int64          `json:"duration_ms"`
}

// Summary converts r for JSON responses.
func (r *Result) Summary() Summary {
	s := Summary{
		RequestID:  r.RequestID,
		Outcome:    r.Outcome,
		Output:     r.FinalOutput,
		Stages:     make([]StageSummary, 0, len(r.StageResults)),
		DurationMs: r.TotalDuration.Milliseconds(),
	}
	for _, sr := range r.StageResults {
		s.Stages = append(s.Stages, StageSummary{
			Index:      sr.Index,
			StageID:    sr.StageID,
			Name:       sr.Name,
			Output:     sr.Output,
			DurationMs: sr.Duration.Milliseconds(),
		})
	}
	return s
}

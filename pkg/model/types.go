package model

import "time"

type SessionID string
type TargetID string
type RunID string

// URLStatus 单个 URL 的抓取结果
type URLStatus string

const (
	URLDone       URLStatus = "done"
	URLFailed     URLStatus = "failed"
	URLTabStopped URLStatus = "tab_stopped"
	URLAborted    URLStatus = "aborted"
)

// URLResult 单个 URL 的抓取统计
type URLResult struct {
	URL      string        `json:"url"`
	Shape    string        `json:"shape"`
	Status   URLStatus     `json:"status"`
	Records  int           `json:"records"`
	Skipped  int           `json:"skipped"`
	Pages    int           `json:"pages"`
	Target   TargetID      `json:"target"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunStats 一次运行的统计
type RunStats struct {
	ID       RunID       `json:"id"`
	Started  time.Time   `json:"started"`
	Finished time.Time   `json:"finished"`
	URLs     []URLResult `json:"urls"`
}

// Records 写入的记录总数
func (s RunStats) Records() int {
	n := 0
	for _, u := range s.URLs {
		n += u.Records
	}
	return n
}

package orchestrator

// SeverityPlaceholder is reported for every finding until severity is
// extracted from the report.
const SeverityPlaceholder = "medium"

// Target is an engine target bound to one or more hosts.
type Target struct {
	ID    string   `json:"id"`
	Hosts []string `json:"hosts"`
}

// Scanner is a scanner registered with the engine.
type Scanner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ScanResult describes a task that was created and started.
type ScanResult struct {
	TaskID        string     `json:"task_id"`
	Status        TaskStatus `json:"status"`
	ReportID      string     `json:"report_id,omitempty"`
	TaskName      string     `json:"task_name,omitempty"`
	Target        string     `json:"target,omitempty"`
	TargetID      string     `json:"target_id,omitempty"`
	TargetCreated bool       `json:"target_created"`
	ScannerID     string     `json:"scanner_id,omitempty"`
	ScanType      string     `json:"scan_type,omitempty"`
}

// StopResult is the engine's acknowledgement of a stop request.
type StopResult struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message,omitempty"`
}

// StatusResult is the current state of a task.
type StatusResult struct {
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	RawStatus string     `json:"raw_status"`
	Progress  string     `json:"progress,omitempty"`
}

// Finding is one vulnerability record from a completed report.
type Finding struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	OID      string `json:"oid,omitempty"`
}

// FindingsResult holds the findings of a task. Findings is empty, not nil,
// while the task has not finished.
type FindingsResult struct {
	TaskID   string     `json:"task_id"`
	Status   TaskStatus `json:"status"`
	Findings []Finding  `json:"findings"`
}

// VersionResult is the protocol version reported by the engine.
type VersionResult struct {
	Version string `json:"version"`
}

package models

// NetworkInterface represents a network interface on the scanner host.
type NetworkInterface struct {
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
	Subnet    string `json:"subnet"`
	MAC       string `json:"mac,omitempty"`
	Status    string `json:"status"`
}

// SubnetWarning reports a subnet that was skipped or truncated during a scan.
type SubnetWarning struct {
	Subnet  string `json:"subnet"`
	Message string `json:"message"`
}

// ScanResult holds the record of one scan run.
type ScanResult struct {
	ID        string          `json:"id"`
	Subnets   []string        `json:"subnets"`
	StartedAt string          `json:"started_at"`
	EndedAt   string          `json:"ended_at,omitempty"`
	Status    string          `json:"status"`
	Trigger   string          `json:"trigger"`
	Devices   []Device        `json:"devices,omitempty"`
	Warnings  []SubnetWarning `json:"warnings,omitempty"`
	Total     int             `json:"total"`
	Online    int             `json:"online"`
}

// Scan statuses.
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// Scan triggers.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

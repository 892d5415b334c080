package model

// Overview summarises scan activity of one gym.
type Overview struct {
	TotalMachines int `json:"total_machines"`
	TotalScans    int `json:"total_scans"`
	RecentScans   int `json:"recent_scans"`
	UniqueUsers   int `json:"unique_users"`
	DateRangeDays int `json:"date_range_days"`
}

// MachineScanCount is the per-machine aggregate over a window.
type MachineScanCount struct {
	MachineID   uint64 `json:"machine_id"`
	MachineName string `json:"machine_name"`
	ScanCount   int    `json:"scan_count"`
	UniqueUsers int    `json:"unique_users"`
}

// DailyScanCount is the number of scans on one calendar day (UTC).
// Date is formatted YYYY-MM-DD.
type DailyScanCount struct {
	Date      string `json:"date"`
	ScanCount int    `json:"scan_count"`
}

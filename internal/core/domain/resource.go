package domain

import "time"

// ResourceProfile is the estimated cost of running one job.
type ResourceProfile struct {
	CPUIntensity      float64       `json:"cpu_intensity"` // 0..1
	MemoryEstimateMB  float64       `json:"memory_estimate_mb"`
	IOIntensity       float64       `json:"io_intensity"` // 0..1
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// HostResources is a point-in-time capacity snapshot from the probe.
type HostResources struct {
	CPUCores          int       `json:"cpu_cores"`
	TotalMemoryMB     float64   `json:"total_memory_mb"`
	AvailableMemoryMB float64   `json:"available_memory_mb"`
	CPUUsage          float64   `json:"cpu_usage"`    // 0..1
	MemoryUsage       float64   `json:"memory_usage"` // 0..1
	SampledAt         time.Time `json:"sampled_at"`
}

package domain

import "time"

// JobFilter narrows job listings. Zero-value fields match everything.
type JobFilter struct {
	Statuses      []JobStatus
	Types         []JobType
	Priorities    []Priority
	FileTypes     []string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	HasErrors     *bool
	Tags          []string
}

// Matches reports whether the job passes every populated criterion.
func (f *JobFilter) Matches(j *Job) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, j.Status) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, j.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, j.Priority) {
		return false
	}
	if len(f.FileTypes) > 0 && !containsString(f.FileTypes, j.FileType) {
		return false
	}
	if f.CreatedAfter != nil && j.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && j.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	if f.HasErrors != nil && (j.Error != nil) != *f.HasErrors {
		return false
	}
	for _, tag := range f.Tags {
		if !containsString(j.Tags, tag) {
			return false
		}
	}
	return true
}

func containsStatus(ss []JobStatus, s JobStatus) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func containsType(ts []JobType, t JobType) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}

func containsPriority(ps []Priority, p Priority) bool {
	for _, v := range ps {
		if v == p {
			return true
		}
	}
	return false
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

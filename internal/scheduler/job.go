package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidInterval is returned for jobs with a non-positive interval
	ErrInvalidInterval = errors.New("interval must be positive")
	// ErrInvalidAnchor is returned for anchors that cannot be parsed
	ErrInvalidAnchor = errors.New("invalid anchor")
	// ErrNoTask is returned when a spec names a tag with no bound task
	ErrNoTask = errors.New("no task bound to tag")
)

// Func is the work a scheduled job performs
type Func func(ctx context.Context) error

// Spec describes a job to register: which task, how often, and an optional anchor
type Spec struct {
	Tag      string        `yaml:"tag" json:"tag"`
	Interval time.Duration `yaml:"interval" json:"interval"`
	Anchor   string        `yaml:"anchor,omitempty" json:"anchor,omitempty"`
}

// Anchor pins a job to an offset within an hour or a day
type Anchor struct {
	Offset time.Duration
	Period time.Duration // time.Hour or 24h; zero means no anchor
	raw    string
}

// IsZero reports whether the anchor is unset
func (a Anchor) IsZero() bool { return a.Period == 0 }

// String returns the anchor as it was configured
func (a Anchor) String() string { return a.raw }

// ParseAnchor parses ":MM" and "MM:SS" (within the hour) or, for intervals
// that are whole days, "HH:MM" (within the day). Empty input yields no anchor.
func ParseAnchor(s string, interval time.Duration) (Anchor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Anchor{}, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Anchor{}, fmt.Errorf("%w %q", ErrInvalidAnchor, s)
	}

	daily := interval >= 24*time.Hour && interval%(24*time.Hour) == 0

	if parts[0] == "" {
		mm, err := strconv.Atoi(parts[1])
		if err != nil || len(parts[1]) != 2 || mm < 0 || mm > 59 {
			return Anchor{}, fmt.Errorf("%w %q", ErrInvalidAnchor, s)
		}
		return Anchor{Offset: time.Duration(mm) * time.Minute, Period: time.Hour, raw: s}, nil
	}

	a, errA := strconv.Atoi(parts[0])
	b, errB := strconv.Atoi(parts[1])
	if errA != nil || errB != nil || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return Anchor{}, fmt.Errorf("%w %q", ErrInvalidAnchor, s)
	}

	if daily {
		if a < 0 || a > 23 || b < 0 || b > 59 {
			return Anchor{}, fmt.Errorf("%w %q", ErrInvalidAnchor, s)
		}
		return Anchor{Offset: time.Duration(a)*time.Hour + time.Duration(b)*time.Minute, Period: 24 * time.Hour, raw: s}, nil
	}

	if a < 0 || a > 59 || b < 0 || b > 59 {
		return Anchor{}, fmt.Errorf("%w %q", ErrInvalidAnchor, s)
	}
	return Anchor{Offset: time.Duration(a)*time.Minute + time.Duration(b)*time.Second, Period: time.Hour, raw: s}, nil
}

// Job is a registered recurring job
type Job struct {
	Tag        string
	Interval   time.Duration
	Anchor     Anchor
	LastRun    time.Time // Zero until the first run
	Registered time.Time
	run        Func
}

// NextRun computes when the job is next due. It depends only on the job's
// interval, anchor, last run and registration time.
func (j *Job) NextRun() time.Time {
	ref := j.LastRun
	if ref.IsZero() {
		ref = j.Registered
	}
	next := ref.Add(j.Interval)
	if j.Anchor.IsZero() {
		return next
	}

	var base time.Time
	switch j.Anchor.Period {
	case 24 * time.Hour:
		base = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location())
	default:
		base = time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), 0, 0, 0, next.Location())
	}
	anchored := base.Add(j.Anchor.Offset)
	if !anchored.After(ref) {
		anchored = anchored.Add(j.Anchor.Period)
	}
	return anchored
}

// JobInfo is a read-only view of a job
type JobInfo struct {
	Tag      string        `json:"tag"`
	Interval time.Duration `json:"interval"`
	Anchor   string        `json:"anchor,omitempty"`
	LastRun  time.Time     `json:"last_run,omitempty"`
	NextRun  time.Time     `json:"next_run"`
}

// Registry maps tags to jobs
type Registry struct {
	jobs map[string]*Job
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Add registers a job, replacing any job with the same tag
func (r *Registry) Add(job *Job) error {
	if job.Interval <= 0 {
		return fmt.Errorf("job %q: %w", job.Tag, ErrInvalidInterval)
	}
	r.jobs[job.Tag] = job
	return nil
}

// Clear removes every job
func (r *Registry) Clear() {
	r.jobs = make(map[string]*Job)
}

// Len returns the number of registered jobs
func (r *Registry) Len() int {
	return len(r.jobs)
}

// Get returns the job with the given tag
func (r *Registry) Get(tag string) (*Job, bool) {
	j, ok := r.jobs[tag]
	return j, ok
}

// Idle returns the time until the next job is due, clamped to [0, maxIdle].
// The boolean is false when no jobs are registered.
func (r *Registry) Idle(now time.Time, maxIdle time.Duration) (time.Duration, bool) {
	if len(r.jobs) == 0 {
		return 0, false
	}
	var soonest time.Time
	for _, j := range r.jobs {
		next := j.NextRun()
		if soonest.IsZero() || next.Before(soonest) {
			soonest = next
		}
	}
	idle := soonest.Sub(now)
	if idle < 0 {
		idle = 0
	}
	if maxIdle > 0 && idle > maxIdle {
		idle = maxIdle
	}
	return idle, true
}

// Due returns jobs whose next run is at or before now, ordered by tag
func (r *Registry) Due(now time.Time) []*Job {
	var due []*Job
	for _, j := range r.jobs {
		if !j.NextRun().After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].Tag < due[b].Tag })
	return due
}

// Infos returns a snapshot of all jobs ordered by tag
func (r *Registry) Infos() []JobInfo {
	infos := make([]JobInfo, 0, len(r.jobs))
	for _, j := range r.jobs {
		infos = append(infos, JobInfo{
			Tag:      j.Tag,
			Interval: j.Interval,
			Anchor:   j.Anchor.String(),
			LastRun:  j.LastRun,
			NextRun:  j.NextRun(),
		})
	}
	sort.Slice(infos, func(a, b int) bool { return infos[a].Tag < infos[b].Tag })
	return infos
}

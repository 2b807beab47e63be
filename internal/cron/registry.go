package cron

import (
	"context"
	"strings"
)

// Job is a maintenance task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds job; nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Only returns a registry narrowed to the named jobs. Unknown names are reported back.
func (r *Registry) Only(names ...string) (*Registry, []string) {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			wanted[name] = false
		}
	}
	narrowed := NewRegistry()
	for _, job := range r.jobs {
		if _, ok := wanted[job.Name()]; ok {
			narrowed.Register(job)
			wanted[job.Name()] = true
		}
	}
	var unknown []string
	for name, found := range wanted {
		if !found {
			unknown = append(unknown, name)
		}
	}
	return narrowed, unknown
}

package assets

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the state of a generation job.
type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobGenerating JobStatus = "GENERATING"
	JobCompleted  JobStatus = "COMPLETED"
)

// DefaultGenerationTicks is how many host ticks a job spends generating.
const DefaultGenerationTicks = 50

// ErrNoAPIKey is returned when generation is requested without a key.
var ErrNoAPIKey = errors.New("Hyper3D API key is not configured")

// Job is one generation request.
type Job struct {
	ID        string
	Prompt    string
	ImageURLs []string
	Status    JobStatus
	Submitted time.Time
	Imported  bool

	remaining int
}

// Generator tracks Hyper3D jobs. Jobs advance one step per host tick, so
// a request never blocks the loop: callers submit, then poll.
type Generator struct {
	apiKey func() string
	ticks  int

	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
}

// NewGenerator creates a generator. apiKey is read on every submission.
func NewGenerator(apiKey func() string) *Generator {
	return &Generator{
		apiKey: apiKey,
		ticks:  DefaultGenerationTicks,
		jobs:   make(map[string]*Job),
	}
}

// SetGenerationTicks overrides DefaultGenerationTicks.
func (g *Generator) SetGenerationTicks(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ticks = max(n, 1)
}

// Submit queues a job from a text prompt or reference images.
func (g *Generator) Submit(prompt string, imageURLs []string) (*Job, error) {
	if g.apiKey == nil || g.apiKey() == "" {
		return nil, ErrNoAPIKey
	}
	if prompt == "" && len(imageURLs) == 0 {
		return nil, errors.New("either a text prompt or image URLs are required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		ImageURLs: append([]string(nil), imageURLs...),
		Status:    JobQueued,
		Submitted: time.Now(),
		remaining: g.ticks,
	}
	g.jobs[job.ID] = job
	g.order = append(g.order, job.ID)
	return job, nil
}

// Advance moves every unfinished job forward by one tick.
func (g *Generator) Advance() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.order {
		job := g.jobs[id]
		switch job.Status {
		case JobQueued:
			job.Status = JobGenerating
		case JobGenerating:
			job.remaining--
			if job.remaining <= 0 {
				job.Status = JobCompleted
			}
		}
	}
}

// Status returns a copy of the job's current state.
func (g *Generator) Status(id string) (Job, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	job, ok := g.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("Unknown job: %s", id)
	}
	return *job, nil
}

// LatestCompleted returns the most recently submitted completed job that
// has not been imported yet.
func (g *Generator) LatestCompleted() (Job, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.order) - 1; i >= 0; i-- {
		job := g.jobs[g.order[i]]
		if job.Status == JobCompleted && !job.Imported {
			return *job, true
		}
	}
	return Job{}, false
}

// MarkImported records that a completed job's model was imported.
func (g *Generator) MarkImported(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	job, ok := g.jobs[id]
	if !ok {
		return fmt.Errorf("Unknown job: %s", id)
	}
	if job.Status != JobCompleted {
		return fmt.Errorf("Job %s is not complete (status %s)", id, job.Status)
	}
	job.Imported = true
	return nil
}

// Jobs returns copies of all jobs in submission order.
func (g *Generator) Jobs() []Job {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Job, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.jobs[id])
	}
	return out
}

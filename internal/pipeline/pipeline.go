package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/dunamismax/shrinkit/internal/id"
)

// Pipeline drives one session in-process. At most one Process call runs at
// a time; overlapping calls get ErrBusy and change nothing.
type Pipeline struct {
	mu        sync.Mutex
	session   domain.Session
	processor *Processor
	now       func() time.Time
	newRunID  func() string
}

func New(processor *Processor) *Pipeline {
	now := time.Now().UTC()
	return &Pipeline{
		session:   domain.NewSession(id.New(), now),
		processor: processor,
		now:       func() time.Time { return time.Now().UTC() },
		newRunID:  id.New,
	}
}

func (p *Pipeline) Load(src domain.SourceImage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Load(&p.session, src, p.now())
}

func (p *Pipeline) Edit(e Edit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ApplyEdit(&p.session, e, p.now())
}

func (p *Pipeline) Process(ctx context.Context) error {
	p.mu.Lock()
	run, err := Begin(&p.session, p.newRunID(), p.now())
	sessionID := p.session.ID
	p.mu.Unlock()
	if err != nil {
		return err
	}

	out, runErr := p.processor.Process(ctx, sessionID, run)

	p.mu.Lock()
	defer p.mu.Unlock()
	if runErr != nil {
		if err := Fail(&p.session, run.ID, runErr, p.now()); err != nil {
			return err
		}
		return runErr
	}
	return Complete(&p.session, run.ID, out, p.now())
}

func (p *Pipeline) State() domain.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.State
}

// Session returns a copy of the current session.
func (p *Pipeline) Session() domain.Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.session
	if s.Source != nil {
		src := *s.Source
		s.Source = &src
	}
	if s.Processed != nil {
		out := *s.Processed
		s.Processed = &out
	}
	return s
}

func (p *Pipeline) Processed() (domain.ProcessedImage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session.State != domain.StateReady || p.session.Processed == nil {
		return domain.ProcessedImage{}, ErrNotReady
	}
	return *p.session.Processed, nil
}

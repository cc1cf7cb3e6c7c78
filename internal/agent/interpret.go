package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-agent/internal/domain"
	"golang.org/x/sync/errgroup"
)

// InterpretResult holds both generations for one message. Candidate is nil
// when the model produced no structured object.
type InterpretResult struct {
	RawReply  string
	Raw       any
	Candidate *domain.Candidate
}

// Interpreter runs the free-text and structured generations for a message.
type Interpreter struct {
	gen     Generator
	loc     *time.Location
	timeout time.Duration
}

// NewInterpreter creates an Interpreter. Dates without a zone are read in loc.
func NewInterpreter(gen Generator, loc *time.Location, timeout time.Duration) *Interpreter {
	if loc == nil {
		loc = DefaultLocation()
	}
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Interpreter{gen: gen, loc: loc, timeout: timeout}
}

// ModelName returns the underlying generator's model.
func (i *Interpreter) ModelName() string { return i.gen.ModelName() }

// Interpret issues both generations concurrently under one deadline. Either
// call failing fails the whole interpretation with ErrInterpretation.
func (i *Interpreter) Interpret(ctx context.Context, message string) (*InterpretResult, error) {
	tctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	system := Instructions()
	res := &InterpretResult{}
	emptyObject := false

	g, gctx := errgroup.WithContext(tctx)
	g.Go(func() error {
		text, err := i.gen.GenerateText(gctx, system, message)
		if err != nil {
			return callError(tctx, "generate text", err)
		}
		res.RawReply = strings.TrimSpace(text)
		return nil
	})
	g.Go(func() error {
		obj, err := i.gen.GenerateObject(gctx, system, message, CandidateFields)
		if errors.Is(err, ErrEmptyObject) {
			emptyObject = true
			return nil
		}
		if err != nil {
			return callError(tctx, "generate object", err)
		}
		res.Raw = obj
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if emptyObject || res.Raw == nil {
		if res.RawReply == "" {
			return nil, fmt.Errorf("%w: model returned neither text nor object", ErrInterpretation)
		}
		return res, nil
	}

	candidate, err := ParseCandidate(res.Raw, i.loc)
	if err != nil {
		return res, fmt.Errorf("%w: validate candidate: %w", ErrInterpretation, err)
	}
	res.Candidate = candidate
	return res, nil
}

// callError marks a generation failure, adding ErrTimeout when the shared
// deadline expired even if the SDK wrapped the context error away.
func callError(tctx context.Context, op string, err error) error {
	if !errors.Is(err, context.DeadlineExceeded) && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", err, context.DeadlineExceeded)
	}
	return wrapCall(ErrInterpretation, op, err)
}

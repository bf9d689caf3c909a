package genclient

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
)

var ErrNoScriptedResponse = errors.New("genclient: no scripted response for use case")

// Fake is a scripted Generator for tests. Responses are raw JSON keyed by
// use case and run through the same decode-and-validate gate as the real
// client.
type Fake struct {
	mu        sync.Mutex
	responses map[UseCase][]string
	errs      map[UseCase]error
	validate  *validator.Validate

	Calls []Request
}

func NewFake() *Fake {
	return &Fake{
		responses: make(map[UseCase][]string),
		errs:      make(map[UseCase]error),
		validate:  validator.New(),
	}
}

// Respond queues a JSON payload for a use case. Multiple payloads are
// consumed in order; the last one repeats.
func (f *Fake) Respond(uc UseCase, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[uc] = append(f.responses[uc], payload)
}

// Fail makes every call for the use case return err.
func (f *Fake) Fail(uc UseCase, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[uc] = err
}

func (f *Fake) Generate(_ context.Context, req Request, out any) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, req)
	if err, ok := f.errs[req.UseCase]; ok {
		f.mu.Unlock()
		return err
	}
	queue := f.responses[req.UseCase]
	var payload string
	switch len(queue) {
	case 0:
		f.mu.Unlock()
		return ErrNoScriptedResponse
	case 1:
		payload = queue[0]
	default:
		payload = queue[0]
		f.responses[req.UseCase] = queue[1:]
	}
	f.mu.Unlock()
	return DecodeInto(f.validate, []byte(payload), out)
}

// CallCount returns how many times the use case was invoked.
func (f *Fake) CallCount(uc UseCase) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.UseCase == uc {
			n++
		}
	}
	return n
}

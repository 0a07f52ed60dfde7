package flag

import (
	"context"
	"fmt"
)

// Confirmer is the human decision point. Confirm is only called with
// non-placeholder candidates.
type Confirmer interface {
	Confirm(ctx context.Context, candidate string) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, candidate string) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, candidate string) (bool, error) {
	return f(ctx, candidate)
}

// AcceptAll confirms every candidate offered to it.
var AcceptAll = ConfirmerFunc(func(context.Context, string) (bool, error) { return true, nil })

// Verdict is the outcome of a verification.
type Verdict struct {
	Accepted bool
	Flag     string
	// Feedback is the prompt to send to the model after a rejection.
	Feedback string
	// Placeholder is set when the candidate was filtered before reaching the
	// confirmer.
	Placeholder bool
}

// Validator gates candidates through placeholder filtering and a Confirmer.
type Validator struct {
	confirmer Confirmer
}

// NewValidator creates a validator. A nil confirmer accepts everything.
func NewValidator(c Confirmer) *Validator {
	if c == nil {
		c = AcceptAll
	}
	return &Validator{confirmer: c}
}

// Verify asks the confirmer about candidate. Placeholders are rejected
// without feedback since they never reached a human.
func (v *Validator) Verify(ctx context.Context, candidate string) (Verdict, error) {
	if IsPlaceholder(candidate) {
		return Verdict{Flag: candidate, Placeholder: true}, nil
	}
	ok, err := v.confirmer.Confirm(ctx, candidate)
	if err != nil {
		return Verdict{Flag: candidate}, fmt.Errorf("flag confirmation failed: %w", err)
	}
	if ok {
		return Verdict{Accepted: true, Flag: candidate}, nil
	}
	return Verdict{Flag: candidate, Feedback: RejectionFeedback(candidate)}, nil
}

// RejectionFeedback is the prompt that tells the model its candidate was
// rejected.
func RejectionFeedback(candidate string) string {
	return fmt.Sprintf("IMPORTANT: The flag candidate '%s' was REJECTED by human verification. "+
		"This approach is incorrect. You need to:\n"+
		"1. Reconsider your methodology\n"+
		"2. Try different endpoints or attack vectors\n"+
		"3. Look for alternative solutions\n\n"+
		"Continue with a completely different approach.", candidate)
}

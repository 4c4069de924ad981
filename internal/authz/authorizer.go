package authz

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cedar-policy/cedar-go"
	"github.com/rs/zerolog"
)

//go:embed policies.cedar
var policiesContent []byte

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Allowed  bool
	PolicyID string
	Duration time.Duration
}

// Authorizer evaluates requests against the embedded cedar policy set.
type Authorizer struct {
	policies *cedar.PolicySet
	log      zerolog.Logger
}

// NewAuthorizer parses policyBytes, or the embedded policies when nil.
func NewAuthorizer(log zerolog.Logger, policyBytes []byte) (*Authorizer, error) {
	if policyBytes == nil {
		policyBytes = policiesContent
	}
	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse policies: %w", err)
	}
	return &Authorizer{policies: ps, log: log}, nil
}

func (a *Authorizer) authorize(ctx context.Context, principal cedar.Entity, action Action, resource cedar.Entity) Decision {
	start := time.Now()

	entities := cedar.EntityMap{
		principal.UID: principal,
		resource.UID:  resource,
	}
	req := cedar.Request{
		Principal: principal.UID,
		Action:    actionUID(action),
		Resource:  resource.UID,
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	}

	decision, diag := cedar.Authorize(a.policies, entities, req)

	result := Decision{
		Allowed:  decision == cedar.Allow,
		Duration: time.Since(start),
	}
	if len(diag.Reasons) > 0 {
		result.PolicyID = string(diag.Reasons[0].PolicyID)
	}

	for _, e := range diag.Errors {
		a.log.Error().
			Str("policy", string(e.PolicyID)).
			Str("error", e.Message).
			Msg("policy evaluation error")
	}

	a.log.Debug().
		Str("principal", principal.UID.String()).
		Str("action", string(action)).
		Str("resource", resource.UID.String()).
		Bool("allowed", result.Allowed).
		Str("policy_id", result.PolicyID).
		Int64("duration_us", result.Duration.Microseconds()).
		Msg("authorization decision")

	return result
}

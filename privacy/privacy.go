package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/veloxdb"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from policy rules to indicate
// how the policy evaluation should proceed. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("veloxdb/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("veloxdb/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("veloxdb/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Action is the controller entry point a class-level rule is evaluated for.
type Action string

// Controller actions.
const (
	ActionGet    Action = "get"
	ActionFind   Action = "find"
	ActionCount  Action = "count"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Reads reports whether the action only reads.
func (a Action) Reads() bool {
	return a == ActionGet || a == ActionFind || a == ActionCount
}

// Request is what a rule decides on.
type Request struct {
	Class  string
	Action Action
	// Context is the operation context of the caller, never nil.
	Context *veloxdb.OperationContext
}

type (
	// Rule decides whether a request is allowed. It returns Allow, Deny,
	// Skip (or nil, meaning Skip), or any other error to abort.
	Rule interface {
		EvalRequest(context.Context, Request) error
	}

	// Policy combines multiple rules into a single rule. The first rule
	// that does not skip decides.
	Policy []Rule

	// ClassPolicy decides whether an operation may touch a class at all.
	// It is consulted by the controller before any storage access and
	// returns a *veloxdb.PrivacyError on denial.
	ClassPolicy interface {
		EvalClass(ctx context.Context, class string, action Action) error
	}
)

// RuleFunc type is an adapter which allows the use of ordinary functions
// as rules.
type RuleFunc func(context.Context, Request) error

// EvalRequest returns f(ctx, r).
func (f RuleFunc) EvalRequest(ctx context.Context, r Request) error {
	return f(ctx, r)
}

// EvalRequest evaluates the rules in order.
func (policy Policy) EvalRequest(ctx context.Context, r Request) error {
	for _, rule := range policy {
		switch decision := rule.EvalRequest(ctx, r); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// Classes is a ClassPolicy with one policy per class name. The policy
// stored under the empty name applies to classes without their own.
// Requests no rule decides on are allowed.
type Classes map[string]Policy

// EvalClass implements ClassPolicy.
func (c Classes) EvalClass(ctx context.Context, class string, action Action) error {
	oc := veloxdb.FromContext(ctx)
	if oc.IsRoot {
		return nil
	}
	policy, ok := c[class]
	if !ok {
		policy = c[""]
	}
	var decision error
	if d, ok := DecisionFromContext(ctx); ok {
		decision = d
	} else {
		decision = policy.EvalRequest(ctx, Request{Class: class, Action: action, Context: oc})
	}
	switch {
	case decision == nil || errors.Is(decision, Skip) || errors.Is(decision, Allow):
		return nil
	case errors.Is(decision, Deny):
		return veloxdb.NewPrivacyError(class, string(action), decision.Error())
	default:
		return decision
	}
}

var _ ClassPolicy = Classes(nil)

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it. The decision overrides every rule.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

package privacy

import (
	"context"
	"slices"
)

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() Rule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() Rule {
	return fixedDecision{Deny}
}

// ContextRule creates a rule from a context evaluation function.
// Returning nil is equivalent to returning Skip.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ Request) error {
		return eval(ctx)
	})
}

// DenyIfNoUser returns a rule that denies anonymous requests. This is
// typically used as the first rule in a policy to require authentication.
//
// Example:
//
//	privacy.Policy{
//	    privacy.DenyIfNoUser(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	}
func DenyIfNoUser() Rule {
	return RuleFunc(func(_ context.Context, r Request) error {
		if r.Context.UserID() == "" {
			return Denyf("privacy: user required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows the request if the user has the
// specified role, and skips otherwise.
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows the request if the user has any of
// the specified roles, and skips otherwise.
func HasAnyRole(roles ...string) Rule {
	return RuleFunc(func(_ context.Context, r Request) error {
		if rid := r.Context.RoleID(); rid != "" && slices.Contains(roles, rid) {
			return Allow
		}
		return Skip
	})
}

// IsUser returns a rule that allows the request if it is made by one of
// the given users, and skips otherwise.
func IsUser(ids ...string) Rule {
	return RuleFunc(func(_ context.Context, r Request) error {
		if uid := r.Context.UserID(); uid != "" && slices.Contains(ids, uid) {
			return Allow
		}
		return Skip
	})
}

// OnActions evaluates the given rule only on the given actions.
func OnActions(rule Rule, actions ...Action) Rule {
	return RuleFunc(func(ctx context.Context, r Request) error {
		if slices.Contains(actions, r.Action) {
			return rule.EvalRequest(ctx, r)
		}
		return Skip
	})
}

// DenyActions returns a rule denying the given actions.
func DenyActions(actions ...Action) Rule {
	rule := RuleFunc(func(_ context.Context, r Request) error {
		return Denyf("privacy: %s on %s is not allowed", r.Action, r.Class)
	})
	return OnActions(rule, actions...)
}

// AllowActions returns a rule allowing the given actions.
func AllowActions(actions ...Action) Rule {
	return OnActions(AlwaysAllowRule(), actions...)
}

// ReadOnly returns a rule denying every action that writes.
func ReadOnly() Rule {
	return DenyActions(ActionCreate, ActionUpdate, ActionDelete)
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalRequest(context.Context, Request) error {
	return f.decision
}

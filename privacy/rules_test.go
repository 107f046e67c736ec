package privacy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/privacy"
)

func request(userID, roleID string, action privacy.Action) privacy.Request {
	oc := &veloxdb.OperationContext{}
	if userID != "" {
		oc.User = &veloxdb.User{ID: userID}
		if roleID != "" {
			oc.User.Role = &veloxdb.Role{ID: roleID}
		}
	}
	return privacy.Request{Class: "Post", Action: action, Context: oc}
}

func TestRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule privacy.Rule
		req  privacy.Request
		want error
	}{
		{"always allow", privacy.AlwaysAllowRule(), request("", "", privacy.ActionGet), privacy.Allow},
		{"always deny", privacy.AlwaysDenyRule(), request("u1", "", privacy.ActionGet), privacy.Deny},
		{"deny if no user anonymous", privacy.DenyIfNoUser(), request("", "", privacy.ActionGet), privacy.Deny},
		{"deny if no user", privacy.DenyIfNoUser(), request("u1", "", privacy.ActionGet), privacy.Skip},
		{"has role", privacy.HasRole("admin"), request("u1", "admin", privacy.ActionGet), privacy.Allow},
		{"has role other", privacy.HasRole("admin"), request("u1", "editor", privacy.ActionGet), privacy.Skip},
		{"has role no role", privacy.HasRole("admin"), request("u1", "", privacy.ActionGet), privacy.Skip},
		{"has any role", privacy.HasAnyRole("admin", "editor"), request("u1", "editor", privacy.ActionGet), privacy.Allow},
		{"is user", privacy.IsUser("u1", "u2"), request("u2", "", privacy.ActionGet), privacy.Allow},
		{"is user other", privacy.IsUser("u1"), request("u3", "", privacy.ActionGet), privacy.Skip},
		{"is user anonymous", privacy.IsUser(""), request("", "", privacy.ActionGet), privacy.Skip},
		{"deny actions", privacy.DenyActions(privacy.ActionDelete), request("u1", "", privacy.ActionDelete), privacy.Deny},
		{"deny actions other", privacy.DenyActions(privacy.ActionDelete), request("u1", "", privacy.ActionUpdate), privacy.Skip},
		{"allow actions", privacy.AllowActions(privacy.ActionFind, privacy.ActionGet), request("", "", privacy.ActionFind), privacy.Allow},
		{"read only write", privacy.ReadOnly(), request("u1", "", privacy.ActionCreate), privacy.Deny},
		{"read only read", privacy.ReadOnly(), request("u1", "", privacy.ActionCount), privacy.Skip},
		{"on actions", privacy.OnActions(privacy.DenyIfNoUser(), privacy.ActionCreate), request("", "", privacy.ActionGet), privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.rule.EvalRequest(context.Background(), tt.req), tt.want)
		})
	}
}

func TestContextRule(t *testing.T) {
	t.Parallel()

	type flagKey struct{}
	rule := privacy.ContextRule(func(ctx context.Context) error {
		if ctx.Value(flagKey{}) == true {
			return privacy.Allow
		}
		return nil
	})
	req := request("", "", privacy.ActionGet)
	assert.NoError(t, rule.EvalRequest(context.Background(), req))
	err := rule.EvalRequest(context.WithValue(context.Background(), flagKey{}, true), req)
	assert.True(t, errors.Is(err, privacy.Allow))
}

func TestDenyActionsMessage(t *testing.T) {
	t.Parallel()
	err := privacy.DenyActions(privacy.ActionDelete).EvalRequest(context.Background(), request("u1", "", privacy.ActionDelete))
	assert.Equal(t, "privacy: delete on Post is not allowed: veloxdb/privacy: deny rule", err.Error())
}

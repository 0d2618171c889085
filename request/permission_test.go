package request

import (
	"fmt"
	"testing"

	"marketflow/auth"
)

// TestEvaluate_Matrix exhaustively checks every combination of role, actor
// relationship, current status and action against the documented rules.
func TestEvaluate_Matrix(t *testing.T) {
	roles := []auth.Role{auth.RoleMember, auth.RoleAdmin}
	actors := map[string]string{
		"requester": "user-requester",
		"owner":     "user-owner",
		"stranger":  "user-stranger",
	}
	statuses := []Status{StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted}
	actions := []Action{ActionApprove, ActionReject, ActionCancel, ActionComplete, ActionRead, ActionDelete}

	want := func(role auth.Role, rel string, cur Status, action Action) bool {
		if role == auth.RoleAdmin {
			return true
		}
		switch action {
		case ActionApprove, ActionReject:
			return rel == "owner" && cur == StatusPending
		case ActionCancel:
			return rel == "requester" && cur == StatusPending
		case ActionComplete:
			return (rel == "requester" || rel == "owner") && cur == StatusApproved
		case ActionDelete:
			return rel == "requester" && (cur == StatusPending || cur == StatusRejected || cur == StatusCancelled)
		case ActionRead:
			return rel == "requester" || rel == "owner"
		}
		return false
	}

	for _, role := range roles {
		for rel, actorID := range actors {
			for _, cur := range statuses {
				for _, action := range actions {
					req := Request{
						RequesterID: actors["requester"],
						OwnerID:     actors["owner"],
						Status:      cur,
					}
					name := fmt.Sprintf("%s/%s/%s/%s", role, rel, cur, action)
					t.Run(name, func(t *testing.T) {
						d := Evaluate(actorID, role, req, action)
						if d.Allowed != want(role, rel, cur, action) {
							t.Fatalf("Evaluate(%s) = %v (%s), want %v", name, d.Allowed, d.Reason, !d.Allowed)
						}
						if d.Reason == "" {
							t.Fatal("decision must carry a reason")
						}
					})
				}
			}
		}
	}
}

func TestEvaluate_UnknownActionDenied(t *testing.T) {
	req := Request{RequesterID: "r", OwnerID: "o", Status: StatusPending}
	if d := Evaluate("r", auth.RoleMember, req, Action("reopen")); d.Allowed {
		t.Fatalf("unknown action must be denied, got %+v", d)
	}
}

func TestEvaluate_NoDirectCompletionFromPending(t *testing.T) {
	req := Request{RequesterID: "r", OwnerID: "o", Status: StatusPending}
	for _, actor := range []string{"r", "o"} {
		if d := Evaluate(actor, auth.RoleMember, req, ActionComplete); d.Allowed {
			t.Fatalf("pending request must not complete directly (actor %s)", actor)
		}
	}
	if CanTransition(StatusPending, StatusCompleted) {
		t.Fatal("graph must not contain pending -> completed")
	}
}

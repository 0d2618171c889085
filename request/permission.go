package request

import "marketflow/auth"

// Action is what an actor wants to do with a request. Status transitions use
// the target status as the action; read and delete have their own values.
type Action string

const (
	ActionRead     Action = "read"
	ActionDelete   Action = "delete"
	ActionApprove  Action = Action(StatusApproved)
	ActionReject   Action = Action(StatusRejected)
	ActionCancel   Action = Action(StatusCancelled)
	ActionComplete Action = Action(StatusCompleted)
)

// Decision is the evaluator's verdict plus the rule that produced it.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Evaluate is the single permission decision point for the request
// lifecycle. It is a pure function over the actor, the request's parties and
// current status, and the desired action. Rules apply in order; the first
// match wins:
//
//  1. admins may do anything
//  2. approve/reject: owner only, while pending
//  3. cancel: requester only, while pending
//  4. complete: either party, from approved
//  5. delete: requester, unless the request is approved
//  6. read: either party
func Evaluate(actorID string, role auth.Role, req Request, action Action) Decision {
	if role == auth.RoleAdmin {
		return allow("admin")
	}

	isRequester := actorID == req.RequesterID
	isOwner := actorID == req.OwnerID

	switch action {
	case ActionApprove, ActionReject:
		if !isOwner {
			return deny("only the resource owner may decide a request")
		}
		if req.Status != StatusPending {
			return deny("request is no longer pending")
		}
		return allow("owner decision on pending request")

	case ActionCancel:
		if !isRequester {
			return deny("only the requester may cancel")
		}
		if req.Status != StatusPending {
			return deny("request is no longer pending")
		}
		return allow("requester cancellation of pending request")

	case ActionComplete:
		if !isRequester && !isOwner {
			return deny("actor is not a party to the request")
		}
		if req.Status != StatusApproved {
			return deny("only approved requests can be completed")
		}
		return allow("party completion of approved request")

	case ActionDelete:
		if !isRequester {
			return deny("only the requester may delete")
		}
		switch req.Status {
		case StatusPending, StatusRejected, StatusCancelled:
			return allow("requester deletion")
		default:
			return deny("approved or completed requests cannot be deleted")
		}

	case ActionRead:
		if isRequester || isOwner {
			return allow("party read access")
		}
		return deny("actor is not a party to the request")
	}

	return deny("unknown action")
}

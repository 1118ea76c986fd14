/*
guard.go - Pure role authorization

PURPOSE:
  CanPerform is the whole authorization model: a pure function of the
  session, the operation, and the target child. No database, no ambient
  context, no always-true admin flag.

RULES:
  PARENT: may perform any operation on any child.
  CHILD:  may only submit and un-submit, and only on their own ledger.
          Never create, verify, reject, delete, or list other children.
*/
package session

import "github.com/warp/quest-ledger/ledger"

// Operation names each guarded gateway action.
type Operation string

const (
	OpListChildren   Operation = "list_children"
	OpProvisionChild Operation = "provision_child"
	OpViewDashboard  Operation = "view_dashboard"
	OpCreateQuest    Operation = "create_quest"
	OpSubmit         Operation = "submit"
	OpUnsubmit       Operation = "unsubmit"
	OpVerify         Operation = "verify"
	OpReject         Operation = "reject"
	OpDelete         Operation = "delete"
)

// childAllowed is the full set of operations a CHILD session may perform
// on its own ledger. Everything else is parent-only.
var childAllowed = map[Operation]bool{
	OpSubmit:        true,
	OpUnsubmit:      true,
	OpViewDashboard: true,
}

// CanPerform reports whether the session may run op against the target
// child's ledger.
func CanPerform(s Session, op Operation, target ledger.ChildID) bool {
	switch s.Role {
	case RoleParent:
		return true
	case RoleChild:
		return childAllowed[op] && target == s.SubjectChildID
	default:
		return false
	}
}

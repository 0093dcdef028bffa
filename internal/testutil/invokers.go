package testutil

import "fmt"

// Call records one host invocation.
type Call struct {
	Kind     string
	ID       string
	TargetID int64
}

// Invokers records ability, item, and auto-attack invocations. Reject makes every
// invocation of the named kind return false.
type Invokers struct {
	Calls  []Call
	Reject map[string]bool
}

// InvokeAbility implements attack.AbilityInvoker.
func (r *Invokers) InvokeAbility(abilityID string, targetID int64) bool {
	r.Calls = append(r.Calls, Call{Kind: "ability", ID: abilityID, TargetID: targetID})
	return !r.Reject["ability"]
}

// InvokeItem implements attack.ItemInvoker.
func (r *Invokers) InvokeItem(itemID int, targetID int64) bool {
	r.Calls = append(r.Calls, Call{Kind: "item", ID: fmt.Sprint(itemID), TargetID: targetID})
	return !r.Reject["item"]
}

// AutoAttack implements attack.AutoAttacker.
func (r *Invokers) AutoAttack(targetID int64) bool {
	r.Calls = append(r.Calls, Call{Kind: "auto", TargetID: targetID})
	return !r.Reject["auto"]
}

// Count returns the number of recorded calls of kind.
func (r *Invokers) Count(kind string) int {
	n := 0
	for _, c := range r.Calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Clear forgets every recorded call.
func (r *Invokers) Clear() {
	r.Calls = nil
}

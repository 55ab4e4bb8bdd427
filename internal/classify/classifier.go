// Package classify assigns an action category to each canonical event by
// walking an ordered rule table, then resolves the event's flows.
package classify

import (
	"errors"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/resolve"
)

// Classifier applies the first matching rule to each event.
type Classifier struct {
	rules []Rule
}

// New creates a Classifier over rules. The last rule should match everything;
// events matching none are marked unresolved.
func New(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Rules returns the table in evaluation order.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// Classify sets Direction, Category and Rule on ev and resolves its flows.
// Resolution failures are attached as issues and turn the event unresolved.
func (c *Classifier) Classify(ev *domain.CanonicalEvent, legs domain.Legs) {
	ev.Direction = baseDirection(ev)

	for _, rule := range c.rules {
		if !rule.Match(ev) {
			continue
		}
		c.apply(ev, legs, rule)
		return
	}

	ev.Rule = RuleUnresolved
	ev.Category = domain.CategoryUnresolved
	ev.AddIssue(domain.Issue{Kind: domain.IssueUnresolvedClassification, Detail: "no rule matched"})
}

func (c *Classifier) apply(ev *domain.CanonicalEvent, legs domain.Legs, rule Rule) {
	ev.Rule = rule.Name
	ev.Category = rule.Category
	if rule.Direction != "" {
		ev.Direction = rule.Direction
	}

	unresolved := rule.Category == domain.CategoryUnresolved
	if unresolved {
		ev.AddIssue(domain.Issue{Kind: domain.IssueUnresolvedClassification, Detail: "no rule matched"})
	}

	if rule.Resolver == nil {
		return
	}

	err := rule.Resolver.Resolve(ev, legs)
	if err == nil || unresolved {
		return
	}

	ev.Category = domain.CategoryUnresolved
	detail := err.Error()
	if !errors.Is(err, resolve.ErrMissingLeg) {
		detail = rule.Resolver.Name() + ": " + detail
	}
	ev.AddIssue(domain.Issue{Kind: domain.IssueMissingLeg, Detail: detail})
}

// baseDirection is Out when the wallet sent the anchor record.
func baseDirection(ev *domain.CanonicalEvent) domain.Direction {
	if ev.Anchor.From == ev.Wallet {
		return domain.DirectionOut
	}
	return domain.DirectionIn
}

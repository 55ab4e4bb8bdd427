package classify

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/config"
	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/resolve"
)

// Matcher reports whether a rule applies to an event. Direction on the event
// is already set to In or Out relative to the wallet.
type Matcher func(ev *domain.CanonicalEvent) bool

// Rule is one entry of the ordered classification table.
type Rule struct {
	Name     string
	Match    Matcher
	Category domain.Category

	// Direction replaces the computed In/Out when set.
	Direction domain.Direction

	// Resolver fills the flows. Nil leaves the event without amounts.
	Resolver resolve.Resolver
}

// Rule names of the built-in table.
const (
	RuleRouterSwap         = "router-swap"
	RuleMultiLegSwap       = "multi-leg-swap"
	RuleContractCall       = "contract-call"
	RuleFeesOnly           = "fees-only"
	RuleBuyOrder           = "buy-order"
	RuleSoldToCounterparty = "sold-to-counterparty"
	RuleWithdrawal         = "withdrawal"
	RuleDepositNative      = "deposit-native"
	RuleDeposit            = "deposit"
	RuleUnresolved         = "unresolved"
)

// DefaultRules builds the rule table from cfg. Extra rules come first so
// new patterns can be added without editing the built-ins. The built-ins
// are ordered so that overriding patterns such as approvals and failed
// transactions win over the plain direction rules.
func DefaultRules(cfg *config.Config) ([]Rule, error) {
	precedence := resolve.ParsePrecedence(cfg.Resolver.LegPrecedence)
	sig := cfg.Signatures

	plain := make(map[string]struct{}, len(sig.PlainTransfer))
	for _, m := range sig.PlainTransfer {
		plain[strings.ToLower(m)] = struct{}{}
	}
	isPlain := func(ev *domain.CanonicalEvent) bool {
		m := strings.ToLower(ev.Anchor.MethodID)
		if m == "" {
			return true
		}
		_, ok := plain[m]
		return ok
	}

	counterparties := make(map[common.Address]struct{}, len(cfg.Counterparties))
	for _, cp := range cfg.Counterparties {
		counterparties[common.HexToAddress(cp.Address)] = struct{}{}
	}

	var rules []Rule
	for _, rc := range cfg.ExtraRules {
		r, err := fromRuleConfig(rc, precedence)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	for _, rc := range cfg.Routers {
		router := common.HexToAddress(rc.Address)
		rules = append(rules, Rule{
			Name:      RuleRouterSwap,
			Match:     func(ev *domain.CanonicalEvent) bool { return ev.Anchor.From == router },
			Category:  domain.CategoryTokenSwap,
			Direction: domain.Direction(rc.Label),
			Resolver: &resolve.RouterSwap{
				OutAsset:    rc.OutboundSymbol,
				OutDecimals: rc.OutboundDecimals,
				InAsset:     rc.InboundSymbol,
				InDecimals:  rc.InboundDecimals,
				Source:      resolve.AmountSource(rc.OutboundAmountSource),
			},
		})
	}

	single := &resolve.SingleLeg{Precedence: precedence}

	rules = append(rules,
		Rule{
			Name:      RuleMultiLegSwap,
			Match:     nativeFunction(sig.MultiLegSwap),
			Category:  domain.CategoryTokenSwap,
			Direction: domain.DirectionTokenSwap,
			Resolver:  &resolve.TokenFlow{Precedence: precedence},
		},
		Rule{
			Name:     RuleContractCall,
			Match:    nativeFunction(sig.ContractCallMarker),
			Category: domain.CategorySellOrder,
			Resolver: &resolve.TokenFlow{IncludeInternal: true, Precedence: precedence},
		},
		Rule{
			Name: RuleFeesOnly,
			Match: func(ev *domain.CanonicalEvent) bool {
				return ev.Anchor.IsError || nativeFunction(sig.ApprovalMarker)(ev)
			},
			Category:  domain.CategoryFeesOnly,
			Direction: domain.DirectionFeesOnly,
		},
		Rule{
			Name: RuleBuyOrder,
			Match: func(ev *domain.CanonicalEvent) bool {
				return ev.Direction == domain.DirectionOut && nativeFunction(sig.SwapMarker)(ev)
			},
			Category: domain.CategoryBuyOrder,
			Resolver: single,
		},
		Rule{
			Name: RuleSoldToCounterparty,
			Match: func(ev *domain.CanonicalEvent) bool {
				if ev.Direction != domain.DirectionOut || !ev.IsNativeAnchor() || !isPlain(ev) {
					return false
				}
				_, ok := counterparties[ev.Anchor.To]
				return ok
			},
			Category: domain.CategorySoldToCounterparty,
			Resolver: single,
		},
		Rule{
			Name: RuleWithdrawal,
			Match: func(ev *domain.CanonicalEvent) bool {
				return ev.Direction == domain.DirectionOut && ev.IsNativeAnchor() && isPlain(ev)
			},
			Category: domain.CategoryWithdrawal,
			Resolver: single,
		},
		Rule{
			Name: RuleDepositNative,
			Match: func(ev *domain.CanonicalEvent) bool {
				return ev.Direction == domain.DirectionIn && ev.IsNativeAnchor() && isPlain(ev)
			},
			Category: domain.CategoryDepositNative,
			Resolver: single,
		},
		Rule{
			Name: RuleDeposit,
			Match: func(ev *domain.CanonicalEvent) bool {
				return ev.Direction == domain.DirectionIn && ev.IsTokenOnly()
			},
			Category: domain.CategoryDeposit,
			Resolver: single,
		},
		Rule{
			Name:     RuleUnresolved,
			Match:    func(*domain.CanonicalEvent) bool { return true },
			Category: domain.CategoryUnresolved,
			Resolver: single,
		},
	)

	return rules, nil
}

// functionContains matches the anchor function name case-insensitively.
// An empty marker never matches.
func functionContains(marker string) Matcher {
	marker = strings.ToLower(marker)
	return func(ev *domain.CanonicalEvent) bool {
		if marker == "" {
			return false
		}
		return strings.Contains(strings.ToLower(ev.Anchor.FunctionName), marker)
	}
}

// nativeFunction is functionContains restricted to native anchors.
// Token-only events carry the function name of the third party's call.
func nativeFunction(marker string) Matcher {
	contains := functionContains(marker)
	return func(ev *domain.CanonicalEvent) bool {
		return ev.IsNativeAnchor() && contains(ev)
	}
}

// fromRuleConfig converts a configured extra rule. Every set match field
// must hold.
func fromRuleConfig(rc config.RuleConfig, precedence resolve.LegPrecedence) (Rule, error) {
	var matchers []Matcher

	if rc.FunctionContains != "" {
		matchers = append(matchers, functionContains(rc.FunctionContains))
	}
	if rc.MethodID != "" {
		method := strings.ToLower(rc.MethodID)
		matchers = append(matchers, func(ev *domain.CanonicalEvent) bool {
			return strings.ToLower(ev.Anchor.MethodID) == method
		})
	}
	if rc.Sender != "" {
		sender := common.HexToAddress(rc.Sender)
		matchers = append(matchers, func(ev *domain.CanonicalEvent) bool { return ev.Anchor.From == sender })
	}
	if rc.Receiver != "" {
		receiver := common.HexToAddress(rc.Receiver)
		matchers = append(matchers, func(ev *domain.CanonicalEvent) bool { return ev.Anchor.To == receiver })
	}
	switch strings.ToLower(rc.Direction) {
	case "in":
		matchers = append(matchers, func(ev *domain.CanonicalEvent) bool { return ev.Direction == domain.DirectionIn })
	case "out":
		matchers = append(matchers, func(ev *domain.CanonicalEvent) bool { return ev.Direction == domain.DirectionOut })
	}

	if len(matchers) == 0 {
		return Rule{}, fmt.Errorf("rule %s has no match fields", rc.Name)
	}

	var r resolve.Resolver
	switch rc.Resolver {
	case config.ResolverTokenFlow:
		r = &resolve.TokenFlow{Precedence: precedence}
	case config.ResolverTokenFlowInternal:
		r = &resolve.TokenFlow{IncludeInternal: true, Precedence: precedence}
	case config.ResolverNone:
		r = nil
	case "", config.ResolverSingleLeg:
		r = &resolve.SingleLeg{Precedence: precedence}
	default:
		return Rule{}, fmt.Errorf("rule %s resolver %q is unknown", rc.Name, rc.Resolver)
	}

	return Rule{
		Name: rc.Name,
		Match: func(ev *domain.CanonicalEvent) bool {
			for _, m := range matchers {
				if !m(ev) {
					return false
				}
			}
			return true
		},
		Category: domain.Category(rc.Category),
		Resolver: r,
	}, nil
}

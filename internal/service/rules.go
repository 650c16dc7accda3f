package service

import (
	"rhythmhub/internal/model"
)

// RulesLegality validates the gameplay legality of a playlist item: the
// ruleset id must name a known ruleset and the required mods must be
// compatible with the allowed set. The queue only sees this interface;
// the binding to the rules library is chosen at wiring time.
type RulesLegality interface {
	ValidateItem(rulesetID int, required, allowed []model.Mod) error
}

const maxRulesetID = 3

// stockRules covers the four built-in rulesets with acronym-level mod
// exclusivity.
type stockRules struct{}

// NewRulesLegality returns the built-in legality rules.
func NewRulesLegality() RulesLegality {
	return stockRules{}
}

func (stockRules) ValidateItem(rulesetID int, required, allowed []model.Mod) error {
	if rulesetID < 0 || rulesetID > maxRulesetID {
		return ErrInvalidState
	}
	for _, m := range required {
		if model.ModsContain(allowed, m.Acronym) {
			return ErrInvalidState
		}
	}
	return nil
}

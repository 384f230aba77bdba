package predictor

import (
	"fmt"
	"math"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/scorer"
)

const (
	// attackGap is the attack strength ratio worth mentioning
	attackGap = 1.3
	// consistencyGap is the consistency difference, in points, worth mentioning
	consistencyGap = 20.0
	// contributionFloor hides factors whose weighted difference is negligible
	contributionFloor = 0.005
)

// Reasons explains a prediction in at most podds.MaxReasons short sentences. Attack
// strength, key player absences and consistency come first, then the scorer's top
// contributing factors
func Reasons(fr *podds.FeatureRecord, scored scorer.Result) []string {
	var out []string
	add := func(s string) bool {
		out = append(out, s)
		return len(out) >= podds.MaxReasons
	}

	r := fr.Raw
	homeAtt := r.HomeAttack * r.HomeAttackMul
	awayAtt := r.AwayAttack * r.AwayAttackMul
	if homeAtt > 0 && awayAtt > 0 {
		switch ratio := homeAtt / awayAtt; {
		case ratio >= attackGap:
			if add(fmt.Sprintf("Home attack is %.1fx stronger (%.2f vs %.2f goals per game)", ratio, homeAtt, awayAtt)) {
				return out
			}
		case ratio <= 1/attackGap:
			if add(fmt.Sprintf("Away attack is %.1fx stronger (%.2f vs %.2f goals per game)", 1/ratio, awayAtt, homeAtt)) {
				return out
			}
		}
	}

	switch {
	case fr.HomeKeyInjured && !fr.AwayKeyInjured:
		if add("Home side is missing a key player") {
			return out
		}
	case fr.AwayKeyInjured && !fr.HomeKeyInjured:
		if add("Away side is missing a key player") {
			return out
		}
	}

	if gap := r.HomeConsistency - r.AwayConsistency; math.Abs(gap) >= consistencyGap {
		side := "Home"
		if gap < 0 {
			side = "Away"
		}
		if add(fmt.Sprintf("%s side is more consistent (%.0f vs %.0f)", side, r.HomeConsistency, r.AwayConsistency)) {
			return out
		}
	}

	for _, c := range scored.Top {
		if math.Abs(c.Diff) < contributionFloor {
			break
		}
		side := "home"
		if c.Diff < 0 {
			side = "away"
		}
		if add(fmt.Sprintf("%s favours the %s side", c.Factor, side)) {
			return out
		}
	}
	return out
}

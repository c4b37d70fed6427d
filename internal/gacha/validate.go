package gacha

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrLadderConfig = errors.New("invalid rarity ladder")

func validateProb(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return ErrInvalidProb
	}
	if p < 0 || p > 1 {
		return ErrInvalidProb
	}
	return nil
}

// Validate checks ordering and numeric bounds of every rung.
func (l Ladder) Validate() error {
	var errs []string
	for i, t := range l {
		if t.Rarity != ladderOrder[i] {
			errs = append(errs, fmt.Sprintf("tier[%d] must be %s, got %q", i, ladderOrder[i], t.Rarity))
		}
		if t.Denominator == 0 {
			errs = append(errs, fmt.Sprintf("%s: denominator must be >= 1", t.Rarity))
			continue
		}
		if t.Numerator == 0 {
			errs = append(errs, fmt.Sprintf("%s: numerator must be >= 1", t.Rarity))
		}
		if t.Cap < t.Numerator {
			errs = append(errs, fmt.Sprintf("%s: cap must be >= numerator", t.Rarity))
		}
		if t.Cap > t.Denominator {
			errs = append(errs, fmt.Sprintf("%s: cap must be <= denominator", t.Rarity))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrLadderConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

// MatchVerdict is the outcome of matching one plugin against one observation.
type MatchVerdict struct {
	Matched bool
	// Fired lists the descriptions of every matcher that succeeded, in declaration order.
	Fired []string
	// Inconclusive lists matchers that exhausted their budget without matching.
	Inconclusive []string
}

// MatchPlugin evaluates all matchers of p against obs. The plugin matches when any
// matcher succeeds on any resolved value of its field.
func MatchPlugin(obs *Observation, p *Plugin) MatchVerdict {
	return p.match(newFieldView(obs))
}

func (p *Plugin) match(view *fieldView) MatchVerdict {
	var verdict MatchVerdict
	for _, m := range p.Matchers {
		fired, expired := false, false
		for _, value := range view.resolve(m.Field) {
			switch m.check(value) {
			case Matched:
				fired = true
			case TimedOut:
				expired = true
			}
			if fired {
				break
			}
		}

		switch {
		case fired:
			verdict.Fired = append(verdict.Fired, m.Describe())
		case expired:
			verdict.Inconclusive = append(verdict.Inconclusive, m.Describe())
		}
	}
	verdict.Matched = len(verdict.Fired) > 0
	return verdict
}

package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// validIntervals are the candle intervals understood by the Market Snapshot
// Assembler; kept in lockstep with internal/market.Interval.
var validIntervals = map[string]bool{"1m": true, "5m": true, "15m": true, "1h": true, "4h": true, "1d": true}

var validCapabilities = map[string]bool{"CANDLES": true, "TICKER": true, "DEPTH": true, "FUNDING": true, "OI": true}

// Validate performs the full invariant check the Orchestrator requires at
// startup: weight sums, capability-set closure, threshold ranges. Grounded
// in structure on internal/config/validation.go's per-section
// ValidationErrors aggregation, retargeted from the teacher's app/db/redis/
// trading/risk sections to this domain's pairs/providers/analysts/combiner/
// guards/sizing/journal sections.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validatePairs()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateAnalysts()...)
	errs = append(errs, c.validateCombiner()...)
	errs = append(errs, c.validateGuards()...)
	errs = append(errs, c.validateSizing()...)
	errs = append(errs, c.validateJournal()...)
	errs = append(errs, c.validateEnvironment()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validatePairs() ValidationErrors {
	var errs ValidationErrors
	if len(c.Pairs) == 0 {
		errs = append(errs, ValidationError{Field: "pairs", Message: "at least one trading pair must be configured"})
		return errs
	}
	for i, p := range c.Pairs {
		field := fmt.Sprintf("pairs[%d]", i)
		if p.Base == "" || p.Quote == "" {
			errs = append(errs, ValidationError{Field: field, Message: "base and quote are both required"})
		}
		if !validIntervals[p.Interval] {
			errs = append(errs, ValidationError{Field: field + ".interval", Message: fmt.Sprintf("%q is not a supported interval", p.Interval)})
		}
	}
	return errs
}

func (c *Config) validateProviders() ValidationErrors {
	var errs ValidationErrors
	if len(c.Providers) == 0 {
		errs = append(errs, ValidationError{Field: "providers", Message: "at least one provider must be configured"})
		return errs
	}
	hasPrimary := false
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)
		if p.ID == "" {
			errs = append(errs, ValidationError{Field: field, Message: "id is required"})
		}
		if p.Role != "primary" && p.Role != "fallback" {
			errs = append(errs, ValidationError{Field: field + ".role", Message: fmt.Sprintf("role %q must be primary or fallback", p.Role)})
		}
		if p.Role == "primary" {
			hasPrimary = true
		}
		if len(p.Capabilities) == 0 {
			errs = append(errs, ValidationError{Field: field + ".capabilities", Message: "at least one capability is required"})
		}
		for _, cap := range p.Capabilities {
			if !validCapabilities[cap] {
				errs = append(errs, ValidationError{Field: field + ".capabilities", Message: fmt.Sprintf("%q is not a known capability", cap)})
			}
		}
	}
	// Capability-set closure: every required capability (CANDLES, TICKER,
	// DEPTH) must be served by at least one configured provider.
	covered := map[string]bool{}
	for _, p := range c.Providers {
		for _, cap := range p.Capabilities {
			covered[cap] = true
		}
	}
	for _, required := range []string{"CANDLES", "TICKER", "DEPTH"} {
		if !covered[required] {
			errs = append(errs, ValidationError{Field: "providers", Message: fmt.Sprintf("no configured provider supports required capability %s", required)})
		}
	}
	if !hasPrimary {
		errs = append(errs, ValidationError{Field: "providers", Message: "at least one provider must have role=primary"})
	}
	return errs
}

func (c *Config) validateAnalysts() ValidationErrors {
	var errs ValidationErrors
	if len(c.Analysts) == 0 {
		errs = append(errs, ValidationError{Field: "analysts", Message: "at least one analyst must be configured"})
		return errs
	}
	sum := 0.0
	seen := map[string]bool{}
	for i, a := range c.Analysts {
		field := fmt.Sprintf("analysts[%d]", i)
		if a.ID == "" {
			errs = append(errs, ValidationError{Field: field, Message: "id is required"})
		} else if seen[a.ID] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate analyst id %q", a.ID)})
		}
		seen[a.ID] = true
		if a.Weight < 0 {
			errs = append(errs, ValidationError{Field: field + ".weight", Message: "weight must be >= 0"})
		}
		sum += a.Weight
	}
	if sum < 1-1e-6 || sum > 1+1e-6 {
		errs = append(errs, ValidationError{Field: "analysts", Message: fmt.Sprintf("analyst weights must sum to 1, got %f", sum)})
	}
	return errs
}

func (c *Config) validateCombiner() ValidationErrors {
	var errs ValidationErrors
	if c.Combiner.ThetaBuy <= 0 {
		errs = append(errs, ValidationError{Field: "combiner.theta_buy", Message: "must be > 0"})
	}
	if c.Combiner.ThetaSell <= 0 {
		errs = append(errs, ValidationError{Field: "combiner.theta_sell", Message: "must be > 0"})
	}
	if c.Combiner.FallbackPenalty < 0 || c.Combiner.FallbackPenalty > 1 {
		errs = append(errs, ValidationError{Field: "combiner.fallback_penalty", Message: "must be in [0,1]"})
	}
	return errs
}

func (c *Config) validateGuards() ValidationErrors {
	var errs ValidationErrors
	if c.Guards.ExposureCapQuote <= 0 {
		errs = append(errs, ValidationError{Field: "guards.exposure_cap_quote", Message: "must be > 0"})
	}
	if c.Guards.PerAssetCapPct <= 0 || c.Guards.PerAssetCapPct > 1 {
		errs = append(errs, ValidationError{Field: "guards.per_asset_cap_pct", Message: "must be in (0,1]"})
	}
	if c.Guards.DrawdownPausePct <= 0 || c.Guards.DrawdownPausePct > 1 {
		errs = append(errs, ValidationError{Field: "guards.drawdown_pause_pct", Message: "must be in (0,1]"})
	}
	if c.Guards.CooldownSec < 0 {
		errs = append(errs, ValidationError{Field: "guards.cooldown_sec", Message: "must be >= 0"})
	}
	if c.Guards.VolUpperPct <= 0 {
		errs = append(errs, ValidationError{Field: "guards.vol_upper_pct", Message: "must be > 0"})
	}
	return errs
}

func (c *Config) validateSizing() ValidationErrors {
	var errs ValidationErrors
	if c.Sizing.MinQuote > c.Sizing.MaxQuote {
		errs = append(errs, ValidationError{Field: "sizing.min_quote", Message: "must be <= sizing.max_quote"})
	}
	if c.Sizing.VolFloor > c.Sizing.VolCap {
		errs = append(errs, ValidationError{Field: "sizing.vol_floor", Message: "must be <= sizing.vol_cap"})
	}
	if c.Sizing.BaseNotionalQuote <= 0 {
		errs = append(errs, ValidationError{Field: "sizing.base_notional_quote", Message: "must be > 0"})
	}
	return errs
}

func (c *Config) validateJournal() ValidationErrors {
	var errs ValidationErrors
	if c.Journal.Path == "" {
		errs = append(errs, ValidationError{Field: "journal.path", Message: "is required"})
	}
	return errs
}

func (c *Config) validateEnvironment() ValidationErrors {
	var errs ValidationErrors
	if c.Environment.DeployEnv != "dev" && c.Environment.DeployEnv != "prod" {
		errs = append(errs, ValidationError{Field: "environment.deploy_env", Message: fmt.Sprintf("%q must be dev or prod", c.Environment.DeployEnv)})
	}
	return errs
}

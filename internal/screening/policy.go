// Package screening evaluates applications against the eligibility policy and
// computes the needs score used to order committee review.
package screening

import (
	"errors"
	"fmt"
	"strings"
)

// IncomeBand awards Points when guardian income is strictly below Below.
type IncomeBand struct {
	Below  float64
	Points int
}

// HouseholdBand awards Points when household size is strictly above Above.
type HouseholdBand struct {
	Above  int
	Points int
}

// Policy holds the thresholds applied by the engine.
type Policy struct {
	EligibleConstituency string
	MaxMonthlyIncome     float64
	IncomeBands          []IncomeBand
	IncomeFallback       int
	HouseholdBands       []HouseholdBand
	HouseholdFallback    int
	FirstTimePoints      int
	ContinuingPoints     int
}

// DefaultPolicy returns the office's published thresholds.
func DefaultPolicy() Policy {
	return Policy{
		EligibleConstituency: "Central",
		MaxMonthlyIncome:     150000,
		IncomeBands: []IncomeBand{
			{Below: 20000, Points: 40},
			{Below: 50000, Points: 25},
			{Below: 80000, Points: 10},
		},
		IncomeFallback: 0,
		HouseholdBands: []HouseholdBand{
			{Above: 6, Points: 30},
			{Above: 4, Points: 15},
		},
		HouseholdFallback: 5,
		FirstTimePoints:   30,
		ContinuingPoints:  15,
	}
}

// Validate checks the policy is usable. Income bands must ascend by Below and
// household bands must descend by Above so the first match is the tightest.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.EligibleConstituency) == "" {
		return errors.New("eligible constituency is required")
	}
	if p.MaxMonthlyIncome <= 0 {
		return errors.New("max monthly income must be positive")
	}
	for i := 1; i < len(p.IncomeBands); i++ {
		if p.IncomeBands[i].Below <= p.IncomeBands[i-1].Below {
			return fmt.Errorf("income band %d is not above band %d", i, i-1)
		}
	}
	for i := 1; i < len(p.HouseholdBands); i++ {
		if p.HouseholdBands[i].Above >= p.HouseholdBands[i-1].Above {
			return fmt.Errorf("household band %d is not below band %d", i, i-1)
		}
	}
	if p.FirstTimePoints < 0 || p.ContinuingPoints < 0 {
		return errors.New("document points must not be negative")
	}
	return nil
}

// WithOverrides returns a copy with the non-zero values applied.
func (p Policy) WithOverrides(constituency string, maxIncome float64, firstTime, continuing int) Policy {
	if c := strings.TrimSpace(constituency); c != "" {
		p.EligibleConstituency = c
	}
	if maxIncome > 0 {
		p.MaxMonthlyIncome = maxIncome
	}
	if firstTime > 0 {
		p.FirstTimePoints = firstTime
	}
	if continuing > 0 {
		p.ContinuingPoints = continuing
	}
	return p
}

func (p Policy) incomePoints(income float64) int {
	for _, band := range p.IncomeBands {
		if income < band.Below {
			return band.Points
		}
	}
	return p.IncomeFallback
}

func (p Policy) householdPoints(size int) int {
	for _, band := range p.HouseholdBands {
		if size > band.Above {
			return band.Points
		}
	}
	return p.HouseholdFallback
}

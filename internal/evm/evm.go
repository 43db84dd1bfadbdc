// Package evm computes earned-value performance indices.
package evm

import "math"

// Inputs are the raw earned-value figures for one calculation.
type Inputs struct {
	PV float64
	EV float64
	AC *float64
}

// Result holds the derived indices. SPI is NaN when PV is zero; CPI is
// nil when AC is absent or zero. The two zero-denominator policies are
// intentionally different and both are part of the API contract.
type Result struct {
	SPI    float64
	CPI    *float64
	Status string
}

const (
	StatusOnTrack = "On Track"
	StatusBehind  = "Behind"
)

// Compute derives SPI, CPI and the schedule status.
func Compute(in Inputs) Result {
	spi := math.NaN()
	if in.PV != 0 {
		spi = in.EV / in.PV
	}
	var cpi *float64
	if in.AC != nil && *in.AC != 0 {
		v := in.EV / *in.AC
		cpi = &v
	}
	// NaN >= 1.0 is false, so an undefined SPI reports Behind.
	status := StatusBehind
	if spi >= 1.0 {
		status = StatusOnTrack
	}
	return Result{SPI: spi, CPI: cpi, Status: status}
}

// Round3 rounds to three decimal places for reporting. NaN passes through.
func Round3(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Round(v*1000) / 1000
}

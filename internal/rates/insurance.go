package rates

import (
	"math"
)

// InsuranceConfig holds the insurance policy thresholds. All amounts in
// integer cents; InsurePercent is a fraction of shipment value.
type InsuranceConfig struct {
	MinInsureValueCents int64
	InsurePercent       float64
}

// InsuranceSplit is the outcome of the insurance computation for one
// shipment: what the customer is charged versus what is actually bought.
type InsuranceSplit struct {
	ShipmentValueCents   int64
	AmountToCollectCents int64
	ShouldInsure         bool
	ValueToInsureCents   int64
	InsuranceCostCents   int64
}

const (
	// minShipmentValueCents floors the value used for insurance math.
	minShipmentValueCents = 5000
	// minCollectCents floors the customer-facing insurance charge.
	minCollectCents = 50
	// insurerRate is the insurer's premium as a fraction of insured value.
	insurerRate = 0.01
)

// ComputeInsurance splits a shipment's value into the amount collected from
// the customer and the cost of the insurance actually bought. The collected
// amount may exceed the insurance cost; the difference is margin.
func ComputeInsurance(valueCents int64, cfg InsuranceConfig) InsuranceSplit {
	shipmentValue := valueCents
	if shipmentValue < minShipmentValueCents {
		shipmentValue = minShipmentValueCents
	}

	collect := roundCents(float64(shipmentValue) * insurerRate)
	if collect < minCollectCents {
		collect = minCollectCents
	}

	split := InsuranceSplit{
		ShipmentValueCents:   shipmentValue,
		AmountToCollectCents: collect,
		ShouldInsure:         shipmentValue >= cfg.MinInsureValueCents,
	}

	if split.ShouldInsure {
		split.ValueToInsureCents = roundCents(float64(shipmentValue) * cfg.InsurePercent)
		split.InsuranceCostCents = roundCents(float64(split.ValueToInsureCents) * insurerRate)
	}

	return split
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}

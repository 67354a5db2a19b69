package zkp

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

const (
	// ValueBits bounds attested values and thresholds: both must be < 2^62.
	ValueBits = 62

	HistoryMonths = 12
	historyBits   = 9
)

// ThresholdCircuit proves Result == (Value >= Threshold) and that Binding is
// the MiMC commitment to (Value, Salt) the issuer signed into the attestation.
//
// Public signal order is Result, Threshold, Binding.
type ThresholdCircuit struct {
	Result    frontend.Variable `gnark:",public"`
	Threshold frontend.Variable `gnark:",public"`
	Binding   frontend.Variable `gnark:",public"`

	Value frontend.Variable
	Salt  frontend.Variable
}

func (c *ThresholdCircuit) Define(api frontend.API) error {
	api.AssertIsBoolean(c.Result)
	api.ToBinary(c.Value, ValueBits)
	api.ToBinary(c.Threshold, ValueBits)

	// Result=1 needs Value-Threshold >= 0, Result=0 needs Threshold-Value-1 >= 0.
	// A wrong Result makes the selected difference wrap around the field and
	// fail the range check.
	diff := api.Select(c.Result,
		api.Sub(c.Value, c.Threshold),
		api.Sub(api.Sub(c.Threshold, c.Value), 1),
	)
	api.ToBinary(diff, ValueBits)

	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hasher.Write(c.Value, c.Salt)
	api.AssertIsEqual(hasher.Sum(), c.Binding)
	return nil
}

// RentalHistoryCircuit proves Result == (on-time payments >= MinOnTime) over
// the last HistoryMonths months. Public signal order is Result, MinOnTime.
type RentalHistoryCircuit struct {
	Result    frontend.Variable `gnark:",public"`
	MinOnTime frontend.Variable `gnark:",public"`

	Payments [HistoryMonths]frontend.Variable
}

func (c *RentalHistoryCircuit) Define(api frontend.API) error {
	api.AssertIsBoolean(c.Result)
	api.ToBinary(c.MinOnTime, historyBits-1)

	var onTime frontend.Variable = 0
	for i := range c.Payments {
		api.AssertIsBoolean(c.Payments[i])
		onTime = api.Add(onTime, c.Payments[i])
	}
	diff := api.Select(c.Result,
		api.Sub(onTime, c.MinOnTime),
		api.Sub(api.Sub(c.MinOnTime, onTime), 1),
	)
	api.ToBinary(diff, historyBits)
	return nil
}

// ThresholdSignalNames lists public inputs in witness order.
func ThresholdSignalNames() []string {
	return []string{"result", "threshold", "commitment"}
}

func RentalHistorySignalNames() []string {
	return []string{"result", "minOnTimePayments"}
}

package procedure

// StatusSuccess is the status field of every successful result.
const StatusSuccess = "success"

// FillResult is returned by FillToMax. Durations are seconds.
type FillResult struct {
	Status         string  `json:"status"`
	Message        string  `json:"message"`
	FillDuration   float64 `json:"fill_duration"`
	AdjustDuration float64 `json:"adjust_duration"`
}

// EmptyResult is returned by EmptyTank.
type EmptyResult struct {
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	Duration float64 `json:"duration"`
}

// OverflowResult is returned by FixOverflow. Drained is false when the
// tank was not full (or the check could not run).
type OverflowResult struct {
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	Drained  bool    `json:"drained"`
	Duration float64 `json:"duration"`
}

// FlushResult is returned by SystemFlush.
type FlushResult struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	FinalFill FillResult `json:"final_fill_details"`
}

// FeedResult is returned by FeedCycle.
type FeedResult struct {
	Status           string             `json:"status"`
	Message          string             `json:"message"`
	Recipe           Recipe             `json:"recipe"`
	AmountsDispensed map[string]float64 `json:"amounts_dispensed"`
	FinalTDS         float64            `json:"final_tds"`
}

// DoseResult is returned by Dose.
type DoseResult struct {
	Status            string  `json:"status"`
	Message           string  `json:"message"`
	Nutrient          string  `json:"nutrient"`
	AmountDispensedML float64 `json:"amount_dispensed_ml"`
	FinalTDS          float64 `json:"final_tds"`
}

// DispenseResult is returned by Dispense.
type DispenseResult struct {
	Status   string  `json:"status"`
	Pump     string  `json:"pump"`
	Duration float64 `json:"duration"`
}

// RelayResult is returned by SetRelay.
type RelayResult struct {
	Status  string `json:"status"`
	ACPower string `json:"ac_power"`
}

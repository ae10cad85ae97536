package hardware

// ProbeStatus is a chemical probe snapshot. Error is set instead of the
// values when the read failed.
type ProbeStatus struct {
	Value   float64 `json:"value"`
	Voltage float64 `json:"voltage"`
	Error   string  `json:"error,omitempty"`
}

// LevelStatus is the float switch part of a snapshot.
type LevelStatus struct {
	Level
	Error string `json:"error,omitempty"`
}

// EnvironmentStatus is the air sensor part of a snapshot.
type EnvironmentStatus struct {
	Environment
	Error string `json:"error,omitempty"`
}

// Status is a point-in-time view of every output and sensor.
type Status struct {
	Pumps       map[Channel]bool  `json:"pumps"`
	ACRelay     bool              `json:"ac_relay"`
	WaterLevel  LevelStatus       `json:"water_level"`
	TDS         ProbeStatus       `json:"tds"`
	PH          ProbeStatus       `json:"ph"`
	Environment EnvironmentStatus `json:"environment"`
}

// ReadStatus samples every device. Sensor failures are reported per field
// and never abort the snapshot. It takes no lock: reads do not move water.
func ReadStatus(d Devices) Status {
	st := Status{Pumps: make(map[Channel]bool, len(Pumps))}
	for _, ch := range Pumps {
		st.Pumps[ch] = d.Actuator.IsActive(ch)
	}
	st.ACRelay = d.Actuator.IsActive(ACRelay)

	if lvl, err := d.Level.ReadLevel(); err != nil {
		st.WaterLevel.Error = err.Error()
	} else {
		st.WaterLevel.Level = lvl
	}

	st.TDS = readProbe(d.TDS)
	st.PH = readProbe(d.PH)

	if env, err := d.Environment.ReadEnvironment(); err != nil {
		st.Environment.Error = err.Error()
	} else {
		st.Environment.Environment = env
	}
	return st
}

func readProbe(s ChemicalSensor) ProbeStatus {
	v, err := s.ReadConcentration()
	if err != nil {
		return ProbeStatus{Error: err.Error()}
	}
	volts, err := s.ReadVoltage()
	if err != nil {
		return ProbeStatus{Error: err.Error()}
	}
	return ProbeStatus{Value: v, Voltage: volts}
}

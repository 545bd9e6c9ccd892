package royalty

// StationClass is the licensing tier of a broadcaster.
type StationClass string

const (
	StationClassA         StationClass = "class_a"
	StationClassB         StationClass = "class_b"
	StationClassC         StationClass = "class_c"
	StationClassOnline    StationClass = "online"
	StationClassCommunity StationClass = "community"
)

// Valid reports whether c is a known class.
func (c StationClass) Valid() bool {
	switch c {
	case StationClassA, StationClassB, StationClassC, StationClassOnline, StationClassCommunity:
		return true
	}
	return false
}

// TimePeriod is the time-of-day bucket a play falls into.
type TimePeriod string

const (
	TimePeriodPrime   TimePeriod = "prime_time"
	TimePeriodRegular TimePeriod = "regular_time"
	TimePeriodOffPeak TimePeriod = "off_peak"
)

// Station is a broadcaster as seen by the engine.
type Station struct {
	ID        string
	Name      string
	Location  string
	Territory string
	Timezone  string
	Class     StationClass
}

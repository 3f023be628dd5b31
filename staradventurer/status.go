package staradventurer

import (
	"time"

	"github.com/w1xm/staradventurer/astro"
)

// Status is a snapshot of the driver for display and logging. Coordinates
// are only meaningful when Connected is set.
type Status struct {
	Time         time.Time `json:"time"`
	SiderealTime float64   `json:"sidereal_time"`
	Connected    bool      `json:"connected"`

	State    string `json:"state,omitempty"`
	Task     string `json:"task,omitempty"`
	Tracking bool   `json:"tracking"`
	Slewing  bool   `json:"slewing"`
	Parked   bool   `json:"parked"`
	Guiding  bool   `json:"guiding"`

	MechanicalHourAngle float64  `json:"mechanical_hour_angle"`
	HourAngle           float64  `json:"hour_angle"`
	RightAscension      float64  `json:"right_ascension"`
	Declination         float64  `json:"declination"`
	Altitude            float64  `json:"altitude"`
	Azimuth             float64  `json:"azimuth"`
	SideOfPier          PierSide `json:"side_of_pier"`

	TrackingRate string     `json:"tracking_rate"`
	DecChange    *DecChange `json:"dec_change,omitempty"`
}

// Status reads the current state of the driver. A hardware failure while
// reading leaves Connected unset.
func (s *StarAdventurer) Status() Status {
	now := s.UTCDate()
	st := Status{
		Time:         now,
		SiderealTime: astro.LocalSiderealTime(now, s.Longitude()),
		TrackingRate: s.TrackingRate().String(),
		Declination:  s.settings.Declination.Get(),
	}
	if d, ok := s.dec.Pending(); ok {
		st.DecChange = &d
	}
	state, err := s.conn.State()
	if err != nil {
		return st
	}
	mech, ha, west, err := s.pointing()
	if err != nil {
		return st
	}
	st.Connected = true
	st.State = state.String()
	st.Task = s.conn.Task().String()
	st.Tracking = state.IsTracking()
	st.Slewing = state.IsSlewing()
	st.Parked = state.IsParked()
	st.Guiding = state.IsGuiding()
	st.MechanicalHourAngle = mech
	st.HourAngle = ha
	st.RightAscension = astro.RightAscension(st.SiderealTime, ha)
	st.Azimuth, st.Altitude = astro.EquatorialToHorizontal(ha, st.Declination, s.Latitude())
	st.SideOfPier = pierSide(west)
	return st
}

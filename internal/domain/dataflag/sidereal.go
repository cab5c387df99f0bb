package dataflag

import "math"

// Calendar converts between Local Sidereal Day indices and Unix times for
// one site. LSD n covers [CSDToUnix(n), CSDToUnix(n+1)).
type Calendar struct {
	// ZeroUnix is the Unix time at which LSD 0 starts.
	ZeroUnix float64
	// DaySeconds is the length of one sidereal day in seconds.
	DaySeconds float64
}

// CHIMECalendar is the sidereal calendar of the CHIME site.
var CHIMECalendar = Calendar{
	ZeroUnix:   1384489290.908534,
	DaySeconds: 86164.0905,
}

// CSDToUnix returns the Unix time at which the given LSD starts.
func (c Calendar) CSDToUnix(lsd int64) float64 {
	return c.ZeroUnix + float64(lsd)*c.DaySeconds
}

// UnixToCSD returns the LSD containing the given Unix time.
func (c Calendar) UnixToCSD(unix float64) int64 {
	return int64(math.Floor((unix - c.ZeroUnix) / c.DaySeconds))
}

// DayWindow returns the start and finish Unix times of one LSD.
func (c Calendar) DayWindow(lsd int64) (start, finish float64) {
	return c.CSDToUnix(lsd), c.CSDToUnix(lsd + 1)
}

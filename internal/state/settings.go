package state

import "slices"

// SizePreset is a fixed tank size choice.
type SizePreset struct {
	Label string
	Cols  int
	Rows  int
}

// SizePresets is indexed by Display.SizeIndex.
var SizePresets = []SizePreset{
	{"Small", 40, 16},
	{"Medium", 60, 16},
	{"Medium Tall", 60, 24},
	{"Large", 80, 16},
	{"Large Tall", 80, 24},
	{"Wide", 100, 16},
	{"Wide Tall", 100, 24},
	{"Extra Wide", 120, 24},
}

const (
	DefaultSizeIndex     = 1 // Medium
	DefaultMusicVolume   = 0.08
	DefaultDayNightCycle = "computer"
	DefaultCloseBehavior = "ask"
)

// DayNightCycles are the accepted day/night modes.
var DayNightCycles = []string{"computer", "5min", "10min", "60min", "3hours"}

// CloseBehaviors are the accepted window-close actions.
var CloseBehaviors = []string{"ask", "hide", "close"}

func ValidDayNightCycle(v string) bool { return slices.Contains(DayNightCycles, v) }
func ValidCloseBehavior(v string) bool { return slices.Contains(CloseBehaviors, v) }
func ValidSizeIndex(i int) bool { return i >= 0 && i < len(SizePresets) }

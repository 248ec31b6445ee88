package steps

import (
	"github.com/cepro/dercompliance/config"
	"golang.org/x/exp/slices"
)

// Function is a grid support function under test.
type Function string

const (
	VoltWatt    Function = "VW"
	VoltVar     Function = "VV"
	FreqWatt    Function = "FW"
	RideThrough Function = "VRT"
)

// Profile carries the rules that differ between the supported standards. The step builders are shared and consult
// the profile where a standard deviates, rather than each standard having its own builders.
type Profile struct {
	Standard        string
	SummaryFilename string
	Functions       []Function

	// ElideRepeatedLevels removes steps that would re-judge the criteria at a voltage level that the sweep has
	// already visited, which happens when V2 sits at the EUT's upper voltage limit.
	ElideRepeatedLevels bool
}

var (
	IEEE1547dot1 = Profile{
		Standard:        "IEEE1547dot1",
		SummaryFilename: "IEEE1547-1_summary.csv",
		Functions:       []Function{VoltWatt, VoltVar, RideThrough},
	}
	UL1741SB = Profile{
		Standard:            "UL1741SB",
		SummaryFilename:     "UL1741_summary.csv",
		Functions:           []Function{VoltWatt, VoltVar, RideThrough},
		ElideRepeatedLevels: true,
	}
	EN50549 = Profile{
		Standard:        "EN50549-10",
		SummaryFilename: "EN50549-10_summary.csv",
		Functions:       []Function{VoltWatt, VoltVar, FreqWatt},
	}
)

var profiles = []Profile{IEEE1547dot1, UL1741SB, EN50549}

// ProfileFor returns the profile of the given standard id.
func ProfileFor(standard string) (Profile, error) {
	for _, profile := range profiles {
		if profile.Standard == standard {
			return profile, nil
		}
	}
	return Profile{}, config.Invalidf("unsupported standard '%s'", standard)
}

// Supports returns true if the profile defines a test procedure for `function`.
func (p Profile) Supports(function Function) bool {
	return slices.Contains(p.Functions, function)
}

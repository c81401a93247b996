package ledger

// ClassParam enumerates the per-class fields the owner may update. A closed
// enum keeps typos from silently writing unused fields the way a string-keyed
// setter would.
type ClassParam int

const (
	ClassParamSpot ClassParam = iota
	ClassParamLine
	ClassParamDust
	ClassParamRate
)

func (p ClassParam) String() string {
	switch p {
	case ClassParamSpot:
		return "spot"
	case ClassParamLine:
		return "line"
	case ClassParamDust:
		return "dust"
	case ClassParamRate:
		return "rate"
	}
	return "unknown"
}

// GlobalParam enumerates the global fields the owner may update.
type GlobalParam int

const (
	GlobalParamCeiling GlobalParam = iota
)

func (p GlobalParam) String() string {
	switch p {
	case GlobalParamCeiling:
		return "globalCeiling"
	}
	return "unknown"
}

package models

type CrossoverSignal string

const (
	ConfirmedAbove CrossoverSignal = "confirmed_above"
	ConfirmedBelow CrossoverSignal = "confirmed_below"
	Unconfirmed    CrossoverSignal = "unconfirmed"
)

// Opposite returns the contrary confirmed direction; Unconfirmed maps to itself.
func (s CrossoverSignal) Opposite() CrossoverSignal {
	switch s {
	case ConfirmedAbove:
		return ConfirmedBelow
	case ConfirmedBelow:
		return ConfirmedAbove
	default:
		return Unconfirmed
	}
}

// ConfirmationPolicy decides how many of the last k samples must agree.
type ConfirmationPolicy string

const (
	PolicyStrictAll ConfirmationPolicy = "strict_all"
	PolicyMajority  ConfirmationPolicy = "majority"
)

func (p ConfirmationPolicy) IsValid() bool {
	return p == PolicyStrictAll || p == PolicyMajority
}

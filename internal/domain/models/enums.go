package models

import (
	"fmt"
	"strings"
)

type Side uint8

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

type Type uint8

const (
	TypeUnspecified Type = iota
	TypeMarket
	TypeLimit
)

type Status uint8

const (
	StatusUnspecified Status = iota
	StatusNew
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
)

func OpenStatuses() []Status {
	return []Status{StatusNew, StatusPartiallyFilled}
}

func AllStatuses() []Status {
	return []Status{
		StatusNew,
		StatusPartiallyFilled,
		StatusFilled,
		StatusCanceled,
		StatusRejected,
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	case SideUnspecified:
		return "unspecified"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func ParseSide(value string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return SideUnspecified, fmt.Errorf("unknown order side %q", value)
	}
}

// MarshalText keeps "unspecified" encodable so rejected requests can be stored.
func (s Side) MarshalText() ([]byte, error) {
	switch s {
	case SideBuy, SideSell, SideUnspecified:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
}

func (s *Side) UnmarshalText(text []byte) error {
	if string(text) == "unspecified" {
		*s = SideUnspecified
		return nil
	}

	parsed, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (t Type) String() string {
	switch t {
	case TypeMarket:
		return "market"
	case TypeLimit:
		return "limit"
	case TypeUnspecified:
		return "unspecified"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

func ParseType(value string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "market":
		return TypeMarket, nil
	case "limit":
		return TypeLimit, nil
	default:
		return TypeUnspecified, fmt.Errorf("unknown order type %q", value)
	}
}

func (t Type) MarshalText() ([]byte, error) {
	switch t {
	case TypeMarket, TypeLimit, TypeUnspecified:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("cannot marshal %s", t)
	}
}

func (t *Type) UnmarshalText(text []byte) error {
	if string(text) == "unspecified" {
		*t = TypeUnspecified
		return nil
	}

	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCanceled:
		return "canceled"
	case StatusRejected:
		return "rejected"
	case StatusUnspecified:
		return "unspecified"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "new":
		return StatusNew, nil
	case "partially_filled":
		return StatusPartiallyFilled, nil
	case "filled":
		return StatusFilled, nil
	case "canceled", "cancelled":
		return StatusCanceled, nil
	case "rejected":
		return StatusRejected, nil
	default:
		return StatusUnspecified, fmt.Errorf("unknown order status %q", value)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s == StatusUnspecified || s > StatusRejected {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsOpen reports whether the order can still be filled or canceled.
func (s Status) IsOpen() bool {
	switch s {
	case StatusNew, StatusPartiallyFilled:
		return true
	case StatusFilled, StatusCanceled, StatusRejected, StatusUnspecified:
		return false
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	case StatusNew, StatusPartiallyFilled, StatusUnspecified:
		return false
	default:
		return false
	}
}

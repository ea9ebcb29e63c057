package domain

import (
	"fmt"
	"strings"
)

// Category groups role rules that are mutually exclusive for one member.
type Category uint8

const (
	CategoryMood Category = iota + 1
	CategoryEnergy
	CategoryActivity
	CategoryTime
	CategoryChaos
)

// Categories lists every managed category in reconciliation order.
var Categories = []Category{CategoryMood, CategoryEnergy, CategoryActivity, CategoryTime, CategoryChaos}

// String returns the configuration name of the category.
func (c Category) String() string {
	switch c {
	case CategoryMood:
		return "mood"
	case CategoryEnergy:
		return "energy"
	case CategoryActivity:
		return "activity"
	case CategoryTime:
		return "time"
	case CategoryChaos:
		return "chaos"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	return c >= CategoryMood && c <= CategoryChaos
}

// ParseCategory maps a configuration name to a Category.
func ParseCategory(raw string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(strings.TrimSpace(raw), c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", raw)
}

// Stat names one engagement scalar.
type Stat uint8

const (
	StatMood Stat = iota + 1
	StatEnergy
	StatActivity
)

// Stats lists the engagement scalars.
var Stats = []Stat{StatMood, StatEnergy, StatActivity}

func (s Stat) String() string {
	switch s {
	case StatMood:
		return "mood"
	case StatEnergy:
		return "energy"
	case StatActivity:
		return "activity"
	default:
		return fmt.Sprintf("stat(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the declared stats.
func (s Stat) Valid() bool {
	return s >= StatMood && s <= StatActivity
}

// ParseStat maps a stat name to a Stat.
func ParseStat(raw string) (Stat, error) {
	for _, s := range Stats {
		if strings.EqualFold(strings.TrimSpace(raw), s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stat %q", raw)
}

// Category returns the threshold category driven by the stat.
func (s Stat) Category() Category {
	switch s {
	case StatMood:
		return CategoryMood
	case StatEnergy:
		return CategoryEnergy
	case StatActivity:
		return CategoryActivity
	default:
		return 0
	}
}

// Period is a coarse time-of-day band.
type Period uint8

const (
	PeriodNight Period = iota + 1
	PeriodDay
	PeriodEvening
)

func (p Period) String() string {
	switch p {
	case PeriodNight:
		return "night"
	case PeriodDay:
		return "day"
	case PeriodEvening:
		return "evening"
	default:
		return fmt.Sprintf("period(%d)", uint8(p))
	}
}

// ParsePeriod maps a period name to a Period.
func ParsePeriod(raw string) (Period, error) {
	for _, p := range []Period{PeriodNight, PeriodDay, PeriodEvening} {
		if strings.EqualFold(strings.TrimSpace(raw), p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown period %q", raw)
}

// PeriodForHour returns night for [0,6), day for [6,18) and evening for [18,24).
func PeriodForHour(hour int) Period {
	switch {
	case hour < 6:
		return PeriodNight
	case hour < 18:
		return PeriodDay
	default:
		return PeriodEvening
	}
}

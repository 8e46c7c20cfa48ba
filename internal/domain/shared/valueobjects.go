// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsUUID checks if the value looks like a canonical UUID.
func IsUUID(value string) bool {
	return uuidRegex.MatchString(value)
}

// RequireID validates that an identifier is present.
func RequireID(domain, op, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewDomainError(domain, op, ErrInvalidID, name+" is required")
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Category Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Category is one of the eight fixed habit categories.
// Every daily score carries one sub-score per category.
type Category string

const (
	CategoryMorning     Category = "morning"
	CategoryPhysical    Category = "physical"
	CategoryNutrition   Category = "nutrition"
	CategoryWork        Category = "work"
	CategoryDevelopment Category = "development"
	CategorySocial      Category = "social"
	CategoryReflection  Category = "reflection"
	CategorySleep       Category = "sleep"
)

var allCategories = []Category{
	CategoryMorning,
	CategoryPhysical,
	CategoryNutrition,
	CategoryWork,
	CategoryDevelopment,
	CategorySocial,
	CategoryReflection,
	CategorySleep,
}

// AllCategories returns the categories in their canonical order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// IsValid checks if the category is one of the fixed eight.
func (c Category) IsValid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (c Category) String() string {
	return string(c)
}

// DisplayName returns a human-readable category name.
func (c Category) DisplayName() string {
	switch c {
	case CategoryMorning:
		return "Rutina matutina"
	case CategoryPhysical:
		return "Entrenamiento físico"
	case CategoryNutrition:
		return "Nutrición"
	case CategoryWork:
		return "Trabajo profundo"
	case CategoryDevelopment:
		return "Desarrollo personal"
	case CategorySocial:
		return "Social y carisma"
	case CategoryReflection:
		return "Reflexión"
	case CategorySleep:
		return "Sueño y recuperación"
	default:
		return string(c)
	}
}

// ParseCategory parses and validates a category.
func ParseCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", WrapError("habit", "ParseCategory", ErrInvalidInput,
			fmt.Sprintf("unknown category %q", value), ErrInvalidCategory)
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents a user's position among peers for a day (1 = best).
type Rank int

const (
	// Unranked means no peer data was available.
	Unranked Rank = 0
)

// IsUnranked checks if the user is not ranked.
func (r Rank) IsUnranked() bool {
	return r <= Unranked
}

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// Medal returns a medal emoji for top ranks.
func (r Rank) Medal() string {
	switch r {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return ""
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// DateRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DateRange is an inclusive range of calendar days.
// A zero From or To leaves that side open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the range is not inverted.
func (r DateRange) IsValid() bool {
	if r.From.IsZero() || r.To.IsZero() {
		return true
	}
	return !r.To.Before(r.From)
}

// Contains checks if a calendar day is within the range.
func (r DateRange) Contains(day time.Time) bool {
	if !r.From.IsZero() && day.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && day.After(r.To) {
		return false
	}
	return true
}

// SingleDay returns a range covering exactly one day.
func SingleDay(day time.Time) DateRange {
	return DateRange{From: day, To: day}
}

// Until returns a range open at the start and ending at day.
func Until(day time.Time) DateRange {
	return DateRange{To: day}
}

// AllTime returns a fully open range.
func AllTime() DateRange {
	return DateRange{}
}

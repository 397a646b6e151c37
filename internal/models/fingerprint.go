package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned for requests that must be rejected with a client error.
var ErrInvalidRequest = errors.New("invalid request")

// ElectionType is the office being elected.
type ElectionType string

const (
	President                   ElectionType = "總統"
	MunicipalMayor              ElectionType = "直轄市長"
	CountyMayor                 ElectionType = "縣(市)長"
	TownshipMayor               ElectionType = "鄉(鎮、市)長"
	TownshipRepresentative      ElectionType = "鄉(鎮、市)民代表"
	IndigenousDistrictChief     ElectionType = "直轄市山地原住民區長"
	IndigenousDistrictRepresent ElectionType = "直轄市山地原住民區民代表"
	Legislator                  ElectionType = "立法委員"
	MunicipalCouncilor          ElectionType = "直轄市議員"
	CountyCouncilor             ElectionType = "縣(市)議員"
)

// ElectionTypes lists every accepted election type.
var ElectionTypes = []ElectionType{
	President,
	MunicipalMayor,
	CountyMayor,
	TownshipMayor,
	TownshipRepresentative,
	IndigenousDistrictChief,
	IndigenousDistrictRepresent,
	Legislator,
	MunicipalCouncilor,
	CountyCouncilor,
}

// Valid reports whether t is one of the known election types.
func (t ElectionType) Valid() bool {
	for _, known := range ElectionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// national elections are held on years divisible by four, local ones two years later.
func (t ElectionType) national() bool {
	return t == President || t == Legislator
}

// Fingerprint identifies one cached questionnaire. An empty City or District
// means the field is absent.
type Fingerprint struct {
	Year     int          `json:"year" firestore:"year"`
	Type     ElectionType `json:"type" firestore:"type"`
	City     string       `json:"city" firestore:"city"`
	District string       `json:"district" firestore:"district"`
}

// Key renders the fingerprint as a stable string, suitable for lock names and
// in-process deduplication keys.
func (f Fingerprint) Key() string {
	return fmt.Sprintf("%d|%s|%s|%s", f.Year, f.Type, f.City, f.District)
}

// Topic is the free-text subject handed to the generator.
func (f Fingerprint) Topic() string {
	return strings.Join(strings.Fields(fmt.Sprintf("%d年 中華民國 %s %s %s 候選人", f.Year, f.City, f.District, f.Type)), " ")
}

// Normalize trims whitespace from the optional fields.
func (f Fingerprint) Normalize() Fingerprint {
	f.City = strings.TrimSpace(f.City)
	f.District = strings.TrimSpace(f.District)
	return f
}

// Validate checks the election type and the election year cadence. City and
// district are optional for every type.
func (f Fingerprint) Validate() error {
	if !f.Type.Valid() {
		return fmt.Errorf("%w: unknown election type %q", ErrInvalidRequest, f.Type)
	}
	want := 2
	if f.Type.national() {
		want = 0
	}
	if f.Year%4 != want {
		return fmt.Errorf("%w: no %s election in %d", ErrInvalidRequest, f.Type, f.Year)
	}
	return nil
}

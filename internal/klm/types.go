package klm

import (
	"errors"
	"fmt"
)

// ErrInvalidIndex is returned when a section, sector or layer lies outside
// the range defined for its subdetector.
var ErrInvalidIndex = errors.New("klm: geometry index out of range")

// Subdetector identifies the barrel or endcap part of the KLM.
type Subdetector int

const (
	BKLM Subdetector = 1
	EKLM Subdetector = 2
)

func (s Subdetector) String() string {
	switch s {
	case BKLM:
		return "BKLM"
	case EKLM:
		return "EKLM"
	default:
		return fmt.Sprintf("Subdetector(%d)", int(s))
	}
}

// ParseSubdetector converts "BKLM"/"EKLM" into a Subdetector.
func ParseSubdetector(s string) (Subdetector, error) {
	switch s {
	case "BKLM", "bklm":
		return BKLM, nil
	case "EKLM", "eklm":
		return EKLM, nil
	}
	return 0, fmt.Errorf("unknown subdetector %q", s)
}

// Section is the backward/forward half of a subdetector. The barrel uses
// 0 (backward) and 1 (forward); the endcap uses 1 and 2.
type Section int

// Sector is the 1-based azimuthal sector number.
type Sector int

// Layer is the 1-based layer number counted outwards.
type Layer int

// Barrel and endcap index limits.
const (
	BKLMSectionBackward Section = 0
	BKLMSectionForward  Section = 1
	BKLMSections                = 2
	BKLMSectors                 = 8
	BKLMLayers                  = 15

	EKLMSections = 2
	EKLMSectors  = 4
	EKLMLayers   = 14
)

// SectionLabel returns the short histogram label of a barrel section:
// "BB" for backward and "BF" for forward.
func SectionLabel(s Section) string {
	if s == BKLMSectionForward {
		return "BF"
	}
	return "BB"
}

// ValidateIndices checks a (section, sector, layer) triple against the
// ranges of the subdetector.
func ValidateIndices(sub Subdetector, section Section, sector Sector, layer Layer) error {
	var secMin, secMax Section
	var nSector, nLayer int
	switch sub {
	case BKLM:
		secMin, secMax, nSector, nLayer = 0, 1, BKLMSectors, BKLMLayers
	case EKLM:
		secMin, secMax, nSector, nLayer = 1, 2, EKLMSectors, EKLMLayers
	default:
		return fmt.Errorf("%w: unknown subdetector %d", ErrInvalidIndex, int(sub))
	}
	if section < secMin || section > secMax {
		return fmt.Errorf("%w: %s section %d", ErrInvalidIndex, sub, section)
	}
	if sector < 1 || int(sector) > nSector {
		return fmt.Errorf("%w: %s sector %d", ErrInvalidIndex, sub, sector)
	}
	if layer < 1 || int(layer) > nLayer {
		return fmt.Errorf("%w: %s layer %d", ErrInvalidIndex, sub, layer)
	}
	return nil
}

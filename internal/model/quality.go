package model

import (
	"fmt"
	"strings"
)

// Quality is a requested audio quality tier.
type Quality string

const (
	QualityLow      Quality = "LOW"
	QualityHigh     Quality = "HIGH"
	QualityLossless Quality = "LOSSLESS"
	QualityHiRes    Quality = "HI_RES_LOSSLESS"
)

// ParseQuality accepts the tier names case-insensitively, plus the short
// aliases "hires" and "max".
func ParseQuality(s string) (Quality, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return QualityLow, nil
	case "HIGH":
		return QualityHigh, nil
	case "LOSSLESS":
		return QualityLossless, nil
	case "HI_RES_LOSSLESS", "HI_RES", "HIRES", "MAX":
		return QualityHiRes, nil
	}
	return "", fmt.Errorf("unknown quality %q", s)
}

// Lossless reports whether the tier asks for a lossless codec.
func (q Quality) Lossless() bool {
	return q == QualityLossless || q == QualityHiRes
}

func (q Quality) String() string { return string(q) }

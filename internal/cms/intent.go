package cms

import (
	"fmt"
	"strings"
)

// Intent is an ICC rendering intent.
type Intent int

// Intent values match the ICC header encoding.
const (
	IntentPerceptual Intent = iota
	IntentRelativeColorimetric
	IntentSaturation
	IntentAbsoluteColorimetric
)

func (i Intent) String() string {
	switch i {
	case IntentPerceptual:
		return "perceptual"
	case IntentRelativeColorimetric:
		return "relative"
	case IntentSaturation:
		return "saturation"
	case IntentAbsoluteColorimetric:
		return "absolute"
	}
	return fmt.Sprintf("Intent(%d)", int(i))
}

// ParseIntent converts an intent name to an Intent. Matching is
// case-insensitive and accepts the long "...colorimetric" spellings.
func ParseIntent(s string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "perceptual":
		return IntentPerceptual, nil
	case "relative", "relative colorimetric", "relativecolorimetric":
		return IntentRelativeColorimetric, nil
	case "saturation":
		return IntentSaturation, nil
	case "absolute", "absolute colorimetric", "absolutecolorimetric":
		return IntentAbsoluteColorimetric, nil
	}
	return IntentPerceptual, fmt.Errorf("unknown rendering intent: %q", s)
}

package weather

import (
	"strings"
)

// Condition is the canonical weather condition every provider is normalized
// into. The numeric value is what travels in GW_CONDITIONCODE.
type Condition int

const (
	ConditionClearSky Condition = iota
	ConditionFewClouds
	ConditionScatteredClouds
	ConditionBrokenClouds
	ConditionShowerRain
	ConditionRain
	ConditionThunderstorm
	ConditionSnow
	ConditionMist
	ConditionWind

	ConditionUnknown Condition = 1000
)

var conditionNames = map[Condition]string{
	ConditionClearSky:        "CLEAR_SKY",
	ConditionFewClouds:       "FEW_CLOUDS",
	ConditionScatteredClouds: "SCATTERED_CLOUDS",
	ConditionBrokenClouds:    "BROKEN_CLOUDS",
	ConditionShowerRain:      "SHOWER_RAIN",
	ConditionRain:            "RAIN",
	ConditionThunderstorm:    "THUNDERSTORM",
	ConditionSnow:            "SNOW",
	ConditionMist:            "MIST",
	ConditionWind:            "WIND",
	ConditionUnknown:         "UNKNOWN",
}

func (c Condition) String() string {
	if name, ok := conditionNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Classification tables. Each provider owns its own code space; lookups that
// miss resolve to ConditionUnknown.
var (
	// openWeatherMapIcons is keyed by the numeric two-digit icon prefix ("10d" -> 10).
	openWeatherMapIcons = map[int]Condition{
		1:  ConditionClearSky,
		2:  ConditionFewClouds,
		3:  ConditionScatteredClouds,
		4:  ConditionBrokenClouds,
		9:  ConditionShowerRain,
		10: ConditionRain,
		11: ConditionThunderstorm,
		13: ConditionSnow,
		50: ConditionMist,
	}

	wundergroundIcons = map[string]Condition{
		"clear":         ConditionClearSky,
		"sunny":         ConditionClearSky,
		"mostlysunny":   ConditionFewClouds,
		"partlycloudy":  ConditionFewClouds,
		"partlysunny":   ConditionScatteredClouds,
		"mostlycloudy":  ConditionScatteredClouds,
		"cloudy":        ConditionBrokenClouds,
		"rain":          ConditionRain,
		"chancerain":    ConditionShowerRain,
		"chancesleet":   ConditionShowerRain,
		"tstorms":       ConditionThunderstorm,
		"chancetstorms": ConditionThunderstorm,
		"snow":          ConditionSnow,
		"chancesnow":    ConditionSnow,
		"sleet":         ConditionSnow,
		"flurries":      ConditionSnow,
		"fog":           ConditionMist,
		"hazy":          ConditionMist,
	}

	// forecastIOIcons maps snow and sleet to Thunderstorm. Downstream clients
	// depend on this, keep it until product decides otherwise.
	forecastIOIcons = map[string]Condition{
		"clear-day":           ConditionClearSky,
		"clear-night":         ConditionClearSky,
		"partly-cloudy-day":   ConditionFewClouds,
		"partly-cloudy-night": ConditionFewClouds,
		"cloudy":              ConditionBrokenClouds,
		"rain":                ConditionRain,
		"thunderstorm":        ConditionThunderstorm,
		"snow":                ConditionThunderstorm,
		"sleet":               ConditionThunderstorm,
		"fog":                 ConditionMist,
	}

	yahooCodes = codeTable(map[Condition][]int{
		ConditionClearSky:     {31, 32, 33, 34, 36},
		ConditionFewClouds:    {29, 30, 44},
		ConditionBrokenClouds: {26, 27, 28},
		ConditionShowerRain:   {8, 9, 11, 12, 40},
		ConditionRain:         {6, 10, 35},
		ConditionThunderstorm: {1, 3, 4, 37, 38, 39, 45, 47},
		ConditionSnow:         {5, 7, 13, 14, 15, 16, 17, 18, 41, 42, 43, 46},
		ConditionMist:         {20, 21, 22},
		ConditionWind:         {23, 24, 25},
	})
)

func codeTable(groups map[Condition][]int) map[int]Condition {
	table := make(map[int]Condition)
	for condition, codes := range groups {
		for _, code := range codes {
			table[code] = condition
		}
	}
	return table
}

// ClassifyOpenWeatherMap maps an OpenWeatherMap icon code such as "10d".
func ClassifyOpenWeatherMap(icon string) Condition {
	prefix := icon
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	code, ok := leadingInt(prefix)
	if !ok {
		return ConditionUnknown
	}
	return lookup(openWeatherMapIcons, code)
}

// ClassifyWunderground maps a Weather Underground icon keyword.
func ClassifyWunderground(icon string) Condition {
	return lookup(wundergroundIcons, icon)
}

// ClassifyForecastIO maps a Forecast.io icon keyword.
func ClassifyForecastIO(icon string) Condition {
	return lookup(forecastIOIcons, icon)
}

// ClassifyYahoo maps a Yahoo weather condition code.
func ClassifyYahoo(code int) Condition {
	return lookup(yahooCodes, code)
}

// Classify maps a raw provider code onto the canonical taxonomy. Unrecognized
// providers and codes both yield ConditionUnknown.
func Classify(provider ProviderID, raw string) Condition {
	switch provider {
	case ProviderOpenWeatherMap:
		return ClassifyOpenWeatherMap(raw)
	case ProviderWeatherUnderground:
		return ClassifyWunderground(raw)
	case ProviderForecastIO:
		return ClassifyForecastIO(raw)
	case ProviderYahoo:
		code, ok := leadingInt(raw)
		if !ok {
			return ConditionUnknown
		}
		return ClassifyYahoo(code)
	default:
		return ConditionUnknown
	}
}

func lookup[K comparable](table map[K]Condition, key K) Condition {
	if c, ok := table[key]; ok {
		return c
	}
	return ConditionUnknown
}

// leadingInt parses the optional sign and digit run at the start of s,
// ignoring whatever follows ("10d" -> 10).
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}

	n, digits := 0, 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

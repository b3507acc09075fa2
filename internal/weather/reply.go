package weather

// Status is the client-side state derived from a reply message.
type Status int

const (
	StatusNotYetFetched Status = iota
	StatusAvailable
	StatusBadKey
	StatusLocationUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusBadKey:
		return "bad_key"
	case StatusLocationUnavailable:
		return "location_unavailable"
	default:
		return "not_yet_fetched"
	}
}

// Reply is a decoded success message as a display client sees it.
type Reply struct {
	Name        string
	Description string
	TempK       int
	TempC       int
	TempF       int
	Day         bool
	Condition   Condition
	Sunrise     int64
	Sunset      int64
	Latitude    int64
	Longitude   int64
	Forecast    []ReplyForecast
}

// ReplyForecast is a decoded forecast slot.
type ReplyForecast struct {
	Time      int64
	TempK     int
	TempC     int
	TempF     int
	Condition Condition
}

// DecodeReply decodes an outbound message the way the display client does.
// Celsius and Fahrenheit use integer arithmetic on the kelvin value.
// Forecast slots are read from index 0 until the first missing slot.
func DecodeReply(m Message) (Reply, Status) {
	if m.Bool(KeyReply) {
		return decodeSuccess(m), StatusAvailable
	}
	if m.Bool(KeyBadKey) {
		return Reply{}, StatusBadKey
	}
	if m.Bool(KeyLocationUnavailable) {
		return Reply{}, StatusLocationUnavailable
	}
	return Reply{}, StatusNotYetFetched
}

func decodeSuccess(m Message) Reply {
	var r Reply

	r.Name, _ = m.Text(KeyName)
	r.Description, _ = m.Text(KeyDescription)

	tempK, _ := m.Int(KeyTempK)
	r.TempK, r.TempC, r.TempF = temperatures(int(tempK))

	r.Day = m.Bool(KeyDay)
	code, _ := m.Int(KeyConditionCode)
	r.Condition = Condition(code)
	r.Sunrise, _ = m.Int(KeySunrise)
	r.Sunset, _ = m.Int(KeySunset)
	r.Latitude, _ = m.Int(KeyResultLat)
	r.Longitude, _ = m.Int(KeyResultLong)

	for i := 0; i < MaxForecastSlots; i++ {
		code, ok := m.Int(ForecastKey(KeyForecastConditionCode, i))
		if !ok {
			break
		}
		slotTime, _ := m.Int(ForecastKey(KeyForecastTime, i))
		slotTemp, _ := m.Int(ForecastKey(KeyForecastTempK, i))

		slot := ReplyForecast{Time: slotTime, Condition: Condition(code)}
		slot.TempK, slot.TempC, slot.TempF = temperatures(int(slotTemp))
		r.Forecast = append(r.Forecast, slot)
	}

	return r
}

func temperatures(k int) (kelvin, celsius, fahrenheit int) {
	celsius = k - 273
	return k, celsius, celsius*9/5 + 32
}

package weather

// Downsample builds forecast slots from an hourly series by taking every
// second element starting at index 1 (1, 3, 5, ...) until MaxForecastSlots
// slots are filled. Slots are numbered from 0 in output order.
func Downsample[T any](series []T, slot func(T) ForecastSlot) []ForecastSlot {
	if len(series) < 2 {
		return nil
	}

	slots := make([]ForecastSlot, 0, min(len(series)/2, MaxForecastSlots))
	for i := 1; i < len(series) && i/2 < MaxForecastSlots; i += 2 {
		slots = append(slots, slot(series[i]))
	}
	return slots
}

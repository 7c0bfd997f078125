package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Epoch is the reference instant for minute-encoded timestamps.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

var (
	// ErrNotUTC is returned for timestamps in any location other than time.UTC.
	ErrNotUTC = errors.New("timestamp is not UTC")

	// ErrNotWholeMinute is returned for timestamps with a sub-minute component.
	ErrNotWholeMinute = errors.New("timestamp is not a whole number of minutes")

	// ErrOutOfRange is returned for timestamps that do not fit the int32 encoding.
	ErrOutOfRange = errors.New("timestamp out of range")
)

// Candle is one OHLCV bar. The primary key is (InstrumentID, Minutes).
type Candle struct {
	InstrumentID int16   // Foreign key to Instrument
	Minutes      int32   // Minutes since Epoch
	Open         float32 // low <= open <= high
	High         float32
	Low          float32
	Close        float32 // low <= close <= high
	Volume       int64   // >= 0
}

// Time returns the candle timestamp.
func (c Candle) Time() time.Time {
	return ToTime(c.Minutes)
}

// HistoryBound pairs an instrument with its earliest or latest stored candle.
type HistoryBound struct {
	Instrument Instrument
	Timestamp  time.Time // zero if the instrument has no candles
}

// HasCandles reports whether any candle is stored for the instrument.
func (b HistoryBound) HasCandles() bool {
	return !b.Timestamp.IsZero()
}

// ToMinutes converts a whole-minute UTC timestamp to minutes since Epoch.
func ToMinutes(t time.Time) (int32, error) {
	return toMinutes(t, false)
}

// ToMinutesRounded converts a UTC timestamp to minutes since Epoch,
// rounding down to the start of its minute.
func ToMinutesRounded(t time.Time) (int32, error) {
	return toMinutes(t, true)
}

func toMinutes(t time.Time, round bool) (int32, error) {
	if t.Location() != time.UTC {
		return 0, fmt.Errorf("%w: %s", ErrNotUTC, t.Location())
	}

	// Seconds first: time.Duration overflows for spans beyond ~292 years.
	secs := t.Unix() - Epoch.Unix()
	if !round && (t.Nanosecond() != 0 || secs%60 != 0) {
		return 0, fmt.Errorf("%w: %s", ErrNotWholeMinute, t.Format(time.RFC3339Nano))
	}

	minutes := secs / 60
	if secs%60 < 0 {
		minutes-- // floor for instants before Epoch
	}
	if minutes < math.MinInt32 || minutes > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, t.Format(time.RFC3339))
	}
	return int32(minutes), nil
}

// ToTime converts minutes since Epoch back to a UTC timestamp.
func ToTime(minutes int32) time.Time {
	return time.Unix(Epoch.Unix()+int64(minutes)*60, 0).UTC()
}

package promclient

import (
	"encoding/json"
	"math"
	"time"
)

// Sample is a single (timestamp, value) point of a range query series
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// MarshalJSON encodes the sample as {"t": unix millis, "v": value}, with
// NaN and infinities rendered as null.
func (s Sample) MarshalJSON() ([]byte, error) {
	var v *float64
	if !math.IsNaN(s.Value) && !math.IsInf(s.Value, 0) {
		v = &s.Value
	}
	return json.Marshal(struct {
		T int64    `json:"t"`
		V *float64 `json:"v"`
	}{T: s.Timestamp.UnixMilli(), V: v})
}

// Series is one result series of a range query
type Series struct {
	Metric  map[string]string `json:"metric"`
	Samples []Sample          `json:"samples"`
}

// Result is the outcome of a range query. It is one of Success, Failure or
// TransportError.
type Result interface {
	isResult()
}

// Success carries the decoded result series of a query whose status was "success".
type Success struct {
	Series []Series
}

// Failure is a response that decoded but whose status was not "success".
type Failure struct {
	Status    string
	ErrorType string
	Error     string
}

// TransportError covers everything that prevented a usable response: connection
// errors, timeouts, non-JSON bodies and malformed sample values.
type TransportError struct {
	Timeout bool
	Err     error
}

func (Success) isResult()        {}
func (Failure) isResult()        {}
func (TransportError) isResult() {}

// Empty reports whether the success carries no samples in its first series.
func (s Success) Empty() bool {
	return len(s.Series) == 0 || len(s.Series[0].Samples) == 0
}

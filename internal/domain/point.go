package domain

import "time"

// Point is one time-series sample bound for the metric store.
type Point struct {
	Measurement string    `json:"measurement"`
	Sensor      string    `json:"sensor"`
	Value       float64   `json:"value"`
	Time        time.Time `json:"ts"`
}

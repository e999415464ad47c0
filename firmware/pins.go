//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 2   // ADC read interval in milliseconds
	FRAME_PERIOD_MS    = 100 // One frame per period, averaged over all reads in it
	DEBOUNCE_MS        = 200 // Minimum time between trial button presses

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Thermistor (NTC 10k, B=3950) with a 10k series resistor to 3.3V
	SERIES_RESISTOR_OHM    = 10000
	NOMINAL_RESISTANCE_OHM = 10000
	NOMINAL_TEMPERATURE_C  = 25
	BETA                   = 3950

	// Frame value that marks the start of a trial
	TRIAL_START_SENTINEL = -99

	// Pins
	PIN_THERMISTOR = machine.A1
	PIN_BUTTON     = machine.D2
	PIN_LED        = machine.LED
)

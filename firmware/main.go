//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"encoding/binary"
	"machine"
	"math"
	"time"
)

var (
	adcThermistor machine.ADC
	serial        = machine.Serial // USB CDC, the host side baud rate is ignored

	// ADC averaging - running sum and count
	thermistorSum   uint32
	thermistorCount int

	// Trial button debounce
	buttonWasDown bool
	lastPress     time.Time

	// Timing
	lastADCRead time.Time
	lastFrame   time.Time

	frame [4]byte
)

func main() {
	PIN_THERMISTOR.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_BUTTON.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	adcThermistor = machine.ADC{Pin: PIN_THERMISTOR}
	adcThermistor.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	lastADCRead = time.Now()
	lastFrame = lastADCRead

	for {
		now := time.Now()

		if now.Sub(lastADCRead) >= SAMPLE_INTERVAL_MS*time.Millisecond {
			thermistorSum += uint32(adcThermistor.Get())
			thermistorCount++
			lastADCRead = now
		}

		if buttonPressed(now) {
			// The host restarts its trial clock on this frame
			writeFrame(TRIAL_START_SENTINEL)
			PIN_LED.Set(!PIN_LED.Get())
		}

		if now.Sub(lastFrame) >= FRAME_PERIOD_MS*time.Millisecond && thermistorCount > 0 {
			avg := float32(thermistorSum) / float32(thermistorCount)
			writeFrame(celsius(avg))
			thermistorSum = 0
			thermistorCount = 0
			lastFrame = now
		}

		time.Sleep(100 * time.Microsecond)
	}
}

// buttonPressed reports a debounced press edge. The button pulls the pin low.
func buttonPressed(now time.Time) bool {
	down := !PIN_BUTTON.Get()
	pressed := down && !buttonWasDown && now.Sub(lastPress) >= DEBOUNCE_MS*time.Millisecond
	buttonWasDown = down
	if pressed {
		lastPress = now
	}
	return pressed
}

// celsius converts an averaged ADC reading of the divider to °C using the beta equation.
// The thermistor sits between the ADC pin and ground.
func celsius(raw float32) float32 {
	const full = float32(1<<16 - 1) // machine.ADC.Get scales to 16 bits
	if raw <= 0 || raw >= full {
		return float32(math.NaN())
	}
	r := SERIES_RESISTOR_OHM * raw / (full - raw)
	invT := 1/(NOMINAL_TEMPERATURE_C+273.15) + math.Log(float64(r)/NOMINAL_RESISTANCE_OHM)/BETA
	return float32(1/invT - 273.15)
}

// writeFrame sends one little-endian float32.
func writeFrame(v float32) {
	binary.LittleEndian.PutUint32(frame[:], math.Float32bits(v))
	serial.Write(frame[:])
}

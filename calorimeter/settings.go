package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gocal/pkg/probe"
	"github.com/itohio/gocal/pkg/scope"
)

// showSettingsDialog displays the settings dialog. Settings apply to the next session.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSessionTab(state),
		createSerialTab(state),
		createMeasurementTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 450))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 450))
	d.Show()
}

// saveConfig validates and persists the configuration.
func saveConfig(state *appState) bool {
	if err := state.cfg.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return false
	}
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

// createSessionTab edits the metadata of the next session.
func createSessionTab(state *appState) *container.TabItem {
	trialEntry := widget.NewEntry()
	trialEntry.SetText(state.cfg.Session.TrialID)

	massEntry := widget.NewEntry()
	massEntry.SetText(strconv.FormatFloat(state.cfg.Session.WaterMass, 'f', -1, 64))

	pressureEntry := widget.NewEntry()
	pressureEntry.SetText(state.cfg.Session.StartPressure)

	temperatureEntry := widget.NewEntry()
	temperatureEntry.SetText(strconv.FormatFloat(state.cfg.Session.StartTemperature, 'f', -1, 64))

	channelsSelect := widget.NewSelect([]string{"1", "2"}, nil)
	channelsSelect.SetSelected(strconv.Itoa(state.cfg.Session.Channels))

	saveCheck := widget.NewCheck("", nil)
	saveCheck.SetChecked(state.cfg.Session.SaveOnClose)

	outputEntry := widget.NewEntry()
	outputEntry.SetText(state.cfg.Session.OutputDir)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Trial ID", Widget: trialEntry},
			{Text: "Water Mass (g)", Widget: massEntry},
			{Text: "Starting Pressure (psi)", Widget: pressureEntry, HintText: "two channel sessions"},
			{Text: "Starting Temperature (°C)", Widget: temperatureEntry, HintText: "one channel sessions"},
			{Text: "Channels", Widget: channelsSelect},
			{Text: "Save on Close", Widget: saveCheck},
			{Text: "Output Directory", Widget: outputEntry},
		},
		OnSubmit: func() {
			prevChannels := state.cfg.Session.Channels

			state.cfg.Session.TrialID = trialEntry.Text
			state.cfg.Session.StartPressure = pressureEntry.Text
			if m, err := strconv.ParseFloat(massEntry.Text, 64); err == nil {
				state.cfg.Session.WaterMass = m
			}
			if t, err := strconv.ParseFloat(temperatureEntry.Text, 64); err == nil {
				state.cfg.Session.StartTemperature = t
			}
			if c, err := strconv.Atoi(channelsSelect.Selected); err == nil {
				state.cfg.Session.Channels = c
			}
			state.cfg.Session.SaveOnClose = saveCheck.Checked
			if outputEntry.Text != "" {
				state.cfg.Session.OutputDir = outputEntry.Text
			}

			if !saveConfig(state) {
				return
			}

			if state.cfg.Session.Channels != prevChannels {
				replaceScope(state)
			}
		},
	}

	return container.NewTabItem("Session", form)
}

// replaceScope rebuilds the scope for a changed channel count.
func replaceScope(state *appState) {
	state.scopeWidget = scope.New(state.cfg, state.cfg.Session.Channels >= 2)
	toolbar := createToolbar(state)
	state.window.SetContent(container.NewBorder(toolbar, nil, nil, nil, state.scopeWidget))
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := probe.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // display name to port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	timeoutEntry := widget.NewEntry()
	timeoutEntry.SetText(state.cfg.Serial.ReadTimeout.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
			{Text: "Read Timeout", Widget: timeoutEntry},
		},
		OnSubmit: func() {
			if portSelect.Selected != "" {
				selected := portMap[portSelect.Selected]
				if selected == "" {
					selected = portSelect.Selected
				}
				state.cfg.Serial.Port = selected
			}
			if b, err := strconv.Atoi(baudEntry.Text); err == nil {
				state.cfg.Serial.BaudRate = b
			}
			if d, err := time.ParseDuration(timeoutEntry.Text); err == nil {
				state.cfg.Serial.ReadTimeout = d
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Serial", form)
}

// createMeasurementTab creates the Measurement configuration tab.
func createMeasurementTab(state *appState) *container.TabItem {
	specificHeatEntry := widget.NewEntry()
	specificHeatEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Measurement.SpecificHeat))

	baselineEntry := widget.NewEntry()
	baselineEntry.SetText(fmt.Sprintf("%.2f", state.cfg.Measurement.BaselineWindow))

	rollingEntry := widget.NewEntry()
	rollingEntry.SetText(strconv.Itoa(state.cfg.Measurement.RollingWindow))

	positiveCheck := widget.NewCheck("", nil)
	positiveCheck.SetChecked(state.cfg.Measurement.ElapsedSign < 0)

	tickEntry := widget.NewEntry()
	tickEntry.SetText(state.cfg.Display.TickInterval.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Specific Heat (J/g°C)", Widget: specificHeatEntry},
			{Text: "Baseline Window (s)", Widget: baselineEntry},
			{Text: "Rolling Window (samples)", Widget: rollingEntry},
			{Text: "Cooling as Positive Power", Widget: positiveCheck},
			{Text: "Tick Interval", Widget: tickEntry},
		},
		OnSubmit: func() {
			if c, err := strconv.ParseFloat(specificHeatEntry.Text, 64); err == nil {
				state.cfg.Measurement.SpecificHeat = c
			}
			if w, err := strconv.ParseFloat(baselineEntry.Text, 64); err == nil {
				state.cfg.Measurement.BaselineWindow = w
			}
			if n, err := strconv.Atoi(rollingEntry.Text); err == nil {
				state.cfg.Measurement.RollingWindow = n
			}
			state.cfg.Measurement.ElapsedSign = 1
			if positiveCheck.Checked {
				state.cfg.Measurement.ElapsedSign = -1
			}
			if d, err := time.ParseDuration(tickEntry.Text); err == nil {
				state.cfg.Display.TickInterval = d
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Measurement", form)
}

// createMockTab creates the simulated calorimeter tab.
func createMockTab(state *appState) *container.TabItem {
	startEntry := widget.NewEntry()
	startEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.StartTemperature))

	ambientEntry := widget.NewEntry()
	ambientEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.Ambient))

	tauEntry := widget.NewEntry()
	tauEntry.SetText(state.cfg.Mock.TimeConstant.String())

	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Mock.NoiseLevel))

	sentinelEntry := widget.NewEntry()
	sentinelEntry.SetText(state.cfg.Mock.SentinelAfter.String())

	sampleRateEntry := widget.NewEntry()
	sampleRateEntry.SetText(state.cfg.Mock.SampleRate.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Start Temperature (°C)", Widget: startEntry},
			{Text: "Ambient (°C)", Widget: ambientEntry},
			{Text: "Time Constant", Widget: tauEntry},
			{Text: "Noise Level (°C)", Widget: noiseEntry},
			{Text: "Trial Start After", Widget: sentinelEntry},
			{Text: "Sample Rate", Widget: sampleRateEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(startEntry.Text, 64); err == nil {
				state.cfg.Mock.StartTemperature = v
			}
			if v, err := strconv.ParseFloat(ambientEntry.Text, 64); err == nil {
				state.cfg.Mock.Ambient = v
			}
			if d, err := time.ParseDuration(tauEntry.Text); err == nil {
				state.cfg.Mock.TimeConstant = d
			}
			if v, err := strconv.ParseFloat(noiseEntry.Text, 64); err == nil {
				state.cfg.Mock.NoiseLevel = v
			}
			if d, err := time.ParseDuration(sentinelEntry.Text); err == nil {
				state.cfg.Mock.SentinelAfter = d
			}
			if d, err := time.ParseDuration(sampleRateEntry.Text); err == nil {
				state.cfg.Mock.SampleRate = d
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Mock", form)
}

package atem

import (
	goatem "github.com/camikura/go-atem/atem"
)

// libraryDevice is a go-atem device
type libraryDevice struct {
	d *goatem.Device
}

func dialLibrary(host string, port int, debug bool, onConnect func()) Device {
	d := goatem.NewDevice(host, port, debug)
	d.OnConnected = func(*goatem.Device) { onConnect() }
	return &libraryDevice{d: d}
}

func (l *libraryDevice) Connect() { l.d.Connect() }
func (l *libraryDevice) Close() { l.d.Close() }
func (l *libraryDevice) Model() string {
	return l.d.ProductId
}

func (l *libraryDevice) ProgramInput(me int) VideoSource {
	return VideoSource(l.d.ProgramInput(uint8(me)))
}

func (l *libraryDevice) PreviewInput(me int) VideoSource {
	return VideoSource(l.d.PreviewInput(uint8(me)))
}

func (l *libraryDevice) AuxSource(aux int) VideoSource {
	return VideoSource(l.d.AuxSource(uint8(aux)))
}

func (l *libraryDevice) Inputs() []InputProperties {
	props := l.d.InputProperties()
	inputs := make([]InputProperties, 0, len(props))
	for src, p := range props {
		inputs = append(inputs, InputProperties{
			Source:    VideoSource(src),
			LongName:  p.LongName,
			ShortName: p.ShortName,
		})
	}
	return inputs
}

func (l *libraryDevice) SetProgramInput(me int, src VideoSource) {
	l.d.ChangeProgramInput(uint8(me), uint16(src))
}

func (l *libraryDevice) SetPreviewInput(me int, src VideoSource) {
	l.d.ChangePreviewInput(uint8(me), uint16(src))
}

func (l *libraryDevice) SetAuxSource(aux int, src VideoSource) {
	l.d.ChangeAuxInput(uint8(aux), uint16(src))
}

// Package atem adapts go-atem sessions to the bridge's switcher model
package atem

import "fmt"

// VideoSource identifies a switcher source as used by the ATEM protocol
type VideoSource uint16

// Well-known sources. Physical inputs are numbered 1..40.
const (
	SourceBlack        VideoSource = 0
	SourceColorBars    VideoSource = 1000
	SourceColor1       VideoSource = 2001
	SourceColor2       VideoSource = 2002
	SourceMediaPlayer1 VideoSource = 3010
	SourceMediaPlayer2 VideoSource = 3020
	SourceME1Program   VideoSource = 10010
	SourceME1Preview   VideoSource = 10011

	maxPhysicalInput = 40
)

var sourceNames = map[VideoSource]string{
	SourceBlack:        "black",
	SourceColorBars:    "colorBars",
	SourceColor1:       "color1",
	SourceColor2:       "color2",
	SourceMediaPlayer1: "mediaPlayer1",
	SourceMediaPlayer2: "mediaPlayer2",
	SourceME1Program:   "me1Prog",
	SourceME1Preview:   "me1Prev",
}

// IsInput reports whether the source is a physical input
func (v VideoSource) IsInput() bool {
	return v >= 1 && v <= maxPhysicalInput
}

// String renders physical inputs as "input<N>"
func (v VideoSource) String() string {
	if v.IsInput() {
		return fmt.Sprintf("input%d", uint16(v))
	}
	if name, ok := sourceNames[v]; ok {
		return name
	}
	return fmt.Sprintf("source%d", uint16(v))
}

// InputProperties describes a switcher input
type InputProperties struct {
	Source    VideoSource
	LongName  string
	ShortName string
}

// Package audio plays the notification chime.
// It uses the beep library to decode WAV, OGG and MP3 files and play them
// with volume control.
package audio

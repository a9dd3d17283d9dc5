// Package audio decodes synthesized audio to PCM and plays it using the
// oto/v3 library, tracking playback position for time-based highlighting.
package audio

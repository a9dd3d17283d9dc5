// Package engines contains the speech engines: Speech Dispatcher and a mock
// as native engines, ElevenLabs and Bark as hosted synthesizers.
package engines

package stt_test

import (
	"github.com/satriahrh/aidoctor/adapters/stt"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

var (
	_ repositories.SpeechToText = &stt.GoogleSpeechToText{}
	_ repositories.SpeechToText = &stt.WhisperSpeechToText{}
	_ repositories.SpeechToText = &stt.MockSpeechToText{}
)

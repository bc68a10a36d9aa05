package transport

// HandlerFuncs is a [Handler] built from optional callbacks. Nil callbacks are
// skipped.
type HandlerFuncs struct {
	ConnectivityChanged func(state ConnectivityState)
	AudioStarted        func(responseID int64)
	AudioDataChunk      func(responseID int64)
	AudioStopped        func(responseID int64)
	TranscriptDelta     func(responseID int64, chunk string)
	TranscriptComplete  func(responseID int64, text string)
	ResponseDone        func(responseID int64)
	SpeakingChanged     func(isSpeaking bool)
}

var _ Handler = HandlerFuncs{}

func (h HandlerFuncs) OnConnectivityChanged(state ConnectivityState) {
	if h.ConnectivityChanged != nil {
		h.ConnectivityChanged(state)
	}
}

func (h HandlerFuncs) OnAudioStarted(responseID int64) {
	if h.AudioStarted != nil {
		h.AudioStarted(responseID)
	}
}

func (h HandlerFuncs) OnAudioDataChunk(responseID int64) {
	if h.AudioDataChunk != nil {
		h.AudioDataChunk(responseID)
	}
}

func (h HandlerFuncs) OnAudioStopped(responseID int64) {
	if h.AudioStopped != nil {
		h.AudioStopped(responseID)
	}
}

func (h HandlerFuncs) OnTranscriptDelta(responseID int64, chunk string) {
	if h.TranscriptDelta != nil {
		h.TranscriptDelta(responseID, chunk)
	}
}

func (h HandlerFuncs) OnTranscriptComplete(responseID int64, text string) {
	if h.TranscriptComplete != nil {
		h.TranscriptComplete(responseID, text)
	}
}

func (h HandlerFuncs) OnResponseDone(responseID int64) {
	if h.ResponseDone != nil {
		h.ResponseDone(responseID)
	}
}

func (h HandlerFuncs) OnSpeakingChanged(isSpeaking bool) {
	if h.SpeakingChanged != nil {
		h.SpeakingChanged(isSpeaking)
	}
}

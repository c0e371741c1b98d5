package audio

// Container mime types known to the capture and playback pipelines.
const (
	MimeOggOpus = "audio/ogg"
	MimeWAV     = "audio/wav"
)

// DefaultCandidates is the ordered preference list of compressed container
// formats to use when negotiating a local capture format.
var DefaultCandidates = []string{MimeOggOpus}

// Negotiate returns the first candidate (in preference order) that is both
// recordable by the capture backend and playable by the playback engine. It
// returns ("", false) when no candidate satisfies both predicates, in which
// case the caller must fall back to raw PCM capture.
func Negotiate(candidates []string, recordable, playable func(string) bool) (string, bool) {
	for _, c := range candidates {
		if recordable(c) && playable(c) {
			return c, true
		}
	}
	return "", false
}

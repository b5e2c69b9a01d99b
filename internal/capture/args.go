package capture

// Mode selects what a capture process produces.
type Mode int

const (
	// ModeRecord remuxes the stream into an MP4 clip until asked to stop.
	ModeRecord Mode = iota
	// ModeSingleFrame grabs one video frame as a JPEG and exits.
	ModeSingleFrame
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	switch m {
	case ModeRecord:
		return "record"
	case ModeSingleFrame:
		return "single-frame"
	default:
		return "unknown"
	}
}

// Audio is re-encoded because Reolink cameras deliver raw PCM or AAC-LATM
// that the MP4 muxer rejects.
const (
	audioCodec   = "aac"
	audioBitrate = "128k"
)

// BuildArgs returns the ffmpeg argument list for cfg. The input is always
// pulled over TCP; UDP drops packets on busy Wi-Fi cameras.
func BuildArgs(cfg Config) []string {
	args := []string{
		"-hide_banner",
		"-rtsp_transport", "tcp",
		"-i", cfg.URL,
	}

	switch cfg.Mode {
	case ModeSingleFrame:
		args = append(args,
			"-frames:v", "1",
			"-q:v", "2",
			"-f", "image2",
		)
	default:
		args = append(args,
			"-c:v", "copy",
			"-c:a", audioCodec,
			"-b:a", audioBitrate,
			"-movflags", "+faststart",
			"-f", "mp4",
		)
	}

	return append(args, "-y", cfg.Output)
}

package testutil

import (
	"os"
	"path/filepath"
)

// FakeFfmpeg holds paths to shell scripts that stand in for ffmpeg. Each
// script treats its last argument as the output path, like ffmpeg does.
type FakeFfmpeg struct {
	// Graceful writes output, waits for "q" on stdin, then finalizes and exits 0.
	Graceful string
	// SingleFrame writes a small JPEG and exits 0.
	SingleFrame string
	// Crash prints diagnostics to stderr and exits 1 without output.
	Crash string
	// Stubborn writes output and ignores both "q" and SIGTERM.
	Stubborn string
	// TermOnly writes output, ignores "q" and dies on SIGTERM.
	TermOnly string
	// NoOutput waits for "q" and exits 0 without creating the output file.
	NoOutput string
	// Hang never writes output and never exits on its own.
	Hang string
	// Missing is a path that does not exist.
	Missing string
}

const scriptHeader = `#!/bin/sh
for last in "$@"; do :; done
`

// sleeps are detached from the inherited pipes so a killed shell does not
// leave a child holding stderr open
const idleLoop = `while :; do sleep 0.1 </dev/null >/dev/null 2>&1; done
`

var fakeScripts = map[string]string{
	"graceful": scriptHeader + `echo "Input #0, rtsp, from 'camera':" >&2
echo "Stream mapping: Stream #0:0 -> #0:0 (copy)" >&2
printf 'ftypisom-fake-video' > "$last"
head -c 1 >/dev/null
printf 'moov' >> "$last"
exit 0
`,
	"single-frame": scriptHeader + `printf '\377\330\377\340fake-jpeg\377\331' > "$last"
exit 0
`,
	"crash": scriptHeader + `echo "Input #0, rtsp, from 'camera':" >&2
echo "[rtsp @ 0x1] method DESCRIBE failed: 401 Unauthorized" >&2
echo "rtsp://camera: Server returned 401 Unauthorized" >&2
exit 1
`,
	"stubborn": scriptHeader + `trap '' TERM
printf 'ftypisom-fake-video' > "$last"
` + idleLoop,
	"term-only": scriptHeader + `printf 'ftypisom-fake-video' > "$last"
` + idleLoop,
	"no-output": scriptHeader + `head -c 1 >/dev/null
exit 0
`,
	"hang": scriptHeader + idleLoop,
}

// InstallFakeFfmpeg writes the fake binaries into dir. Call it from TestMain
// before any test runs: executing a file while another goroutine forks with
// its write descriptor open fails with ETXTBSY.
func InstallFakeFfmpeg(dir string) (FakeFfmpeg, error) {
	paths := make(map[string]string, len(fakeScripts))
	for name, script := range fakeScripts {
		path := filepath.Join(dir, "ffmpeg-"+name)
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil { //nolint:gosec // G306: test binaries must be executable
			return FakeFfmpeg{}, err
		}
		paths[name] = path
	}

	return FakeFfmpeg{
		Graceful:    paths["graceful"],
		SingleFrame: paths["single-frame"],
		Crash:       paths["crash"],
		Stubborn:    paths["stubborn"],
		TermOnly:    paths["term-only"],
		NoOutput:    paths["no-output"],
		Hang:        paths["hang"],
		Missing:     filepath.Join(dir, "ffmpeg-missing"),
	}, nil
}

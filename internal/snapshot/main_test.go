//go:build !windows

package snapshot

import (
	"fmt"
	"os"
	"testing"

	"go.uber.org/goleak"

	"github.com/reowatch/reowatch/internal/testutil"
)

var fakes testutil.FakeFfmpeg

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "snapshot-fakes")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fakes, err = testutil.InstallFakeFfmpeg(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := m.Run()
	_ = os.RemoveAll(dir)

	if code == 0 {
		if err := goleak.Find(); err != nil {
			fmt.Fprintln(os.Stderr, "goleak:", err)
			code = 1
		}
	}
	os.Exit(code)
}

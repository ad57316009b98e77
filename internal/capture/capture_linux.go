//go:build linux

package capture

import "fmt"

// platformInputArgs captures the primary X11 display via x11grab.
func platformInputArgs(width, height, fps int) []string {
	return []string{
		"-f", "x11grab",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", ":0.0",
	}
}

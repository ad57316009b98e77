//go:build windows

package capture

import "fmt"

// platformInputArgs captures the desktop via gdigrab.
func platformInputArgs(width, height, fps int) []string {
	return []string{
		"-f", "gdigrab",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", "desktop",
	}
}

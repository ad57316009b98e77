//go:build darwin

package capture

import "fmt"

// platformInputArgs captures the primary display via avfoundation.
func platformInputArgs(width, height, fps int) []string {
	return []string{
		"-f", "avfoundation",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", "1:none",
	}
}

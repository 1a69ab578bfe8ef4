package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
)

// Opens a camera source and grabs a few frames. Handy for checking an
// RTSP URL or device index before adding it to the server config.
func main() {
	uri := flag.String("source", "", "source URI: rtsp url or device index (required)")
	grabs := flag.Int("grabs", 3, "number of frames to grab")
	timeout := flag.Duration("timeout", 5*time.Second, "per-frame grab timeout")
	flag.Parse()

	if *uri == "" {
		fmt.Fprintln(os.Stderr, "Usage: probe --source <rtsp_url|device_index> [--grabs N] [--timeout 5s]")
		os.Exit(2)
	}

	src := media.NewOpenCVSource(media.ConnectionConfig{ID: "probe", SourceURI: *uri})
	if err := src.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", media.SanitizeURI(*uri), err)
		os.Exit(1)
	}
	defer src.Close()

	for i := 0; i < *grabs; i++ {
		start := time.Now()
		f, err := src.Grab(*timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "grab %d: %v\n", i+1, err)
			os.Exit(1)
		}
		fmt.Printf("frame %d: %dx%d in %v\n", i+1, f.Width, f.Height, time.Since(start).Round(time.Millisecond))
	}
	fmt.Println("OK")
}

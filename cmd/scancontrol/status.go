package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/scanprofile/internal/httputil"
	"github.com/banshee-data/scanprofile/internal/monitor"
)

var defaultHTTPClient = &http.Client{Timeout: 5 * time.Second}

// printStatus fetches /api/status from a running service and prints a
// short summary.
func printStatus(ctx context.Context, c httputil.Doer, baseURL string, w io.Writer) error {
	var st monitor.StatusResponse
	if err := httputil.GetJSON(ctx, c, strings.TrimRight(baseURL, "/")+"/api/status", &st); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "version\t%s\n", st.Version.Version)
	fmt.Fprintf(tw, "session\t%s\n", st.SessionID)
	fmt.Fprintf(tw, "uptime\t%s\n", st.Uptime)
	fmt.Fprintf(tw, "device\t%s (%s mm)\n", st.Device.Model, st.Range)
	fmt.Fprintf(tw, "mode\t%s, %d x %d at %.0f Hz\n", st.Acquisition.Mode, st.Setup.ProfileSize, st.Setup.NbProfiles, st.Setup.FrameRate)
	fmt.Fprintf(tw, "state\t%s\n", st.Acquisition.State)
	fmt.Fprintf(tw, "frames\t%d processed, %d failed, %d dropped\n", st.Acquisition.Frames, st.Acquisition.Failures, st.Acquisition.Dropped)
	if s := st.Acquisition.Stream; s != nil {
		fmt.Fprintf(tw, "stream\t%d packets, %d blocks, %d incomplete, %d lost, %d unexpected\n",
			s.Packets, s.Completed, s.Incomplete, s.LostBlocks, s.Unexpected)
	}
	fmt.Fprintf(tw, "last\t%d/%d valid, z %.3f..%.3f mm\n", st.Acquisition.Last.Valid, st.Acquisition.Last.Points, st.Acquisition.Last.MinZ, st.Acquisition.Last.MaxZ)
	if st.Storage != nil {
		fmt.Fprintf(tw, "storage\t%s, %d written, %d dropped\n", st.Storage.Path, st.Storage.Written, st.Storage.Dropped)
	}
	return tw.Flush()
}

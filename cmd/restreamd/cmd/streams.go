package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	// Stream add flags
	addVideoPath      string
	addDuration       string
	addScheduledStart string
	addStreamKey      string
	addVertical       bool
	addQuality        string

	// Stream logs flags
	logLines int
)

// streamsCmd represents the streams command
var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Manage stream jobs",
	Long:  `Commands for creating, listing and controlling re-streaming jobs on the daemon.`,
}

var streamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all streams",
	Long:  `List every stream in the catalog with its schedule and current status.`,
	RunE:  runStreamsList,
}

var streamsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new stream",
	Long:  `Register a new waiting stream. It starts at its scheduled minute, or immediately with 'streams start'.`,
	RunE:  runStreamsAdd,
}

var streamsStartCmd = &cobra.Command{
	Use:   "start <stream-id>",
	Short: "Start a waiting stream now",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreamsStart,
}

var streamsStopCmd = &cobra.Command{
	Use:   "stop <stream-id>",
	Short: "Stop a live stream",
	Long:  `Stop a stream's encoder process. Stopping a stream that is not running is not an error.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStreamsStop,
}

var streamsRemoveCmd = &cobra.Command{
	Use:   "remove <stream-id>",
	Short: "Remove a finished stream",
	Long:  `Remove a terminal stream from the catalog along with its retained encoder log.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStreamsRemove,
}

var streamsLogsCmd = &cobra.Command{
	Use:   "logs <stream-id>",
	Short: "Show a stream's encoder log",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreamsLogs,
}

var streamsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "List running encoders",
	RunE:  runStreamsActive,
}

func init() {
	rootCmd.AddCommand(streamsCmd)
	streamsCmd.AddCommand(streamsListCmd)
	streamsCmd.AddCommand(streamsAddCmd)
	streamsCmd.AddCommand(streamsStartCmd)
	streamsCmd.AddCommand(streamsStopCmd)
	streamsCmd.AddCommand(streamsRemoveCmd)
	streamsCmd.AddCommand(streamsLogsCmd)
	streamsCmd.AddCommand(streamsActiveCmd)

	streamsAddCmd.Flags().StringVar(&addVideoPath, "video", "", "path to the video file (required)")
	streamsAddCmd.Flags().StringVar(&addDuration, "duration", "", "display duration, e.g. 01:30:00")
	streamsAddCmd.Flags().StringVar(&addScheduledStart, "start", "", "scheduled start time HH:MM (required)")
	streamsAddCmd.Flags().StringVar(&addStreamKey, "key", "", "RTMP stream key (required)")
	streamsAddCmd.Flags().BoolVar(&addVertical, "vertical", false, "stream in vertical orientation")
	streamsAddCmd.Flags().StringVar(&addQuality, "quality", "medium", "quality profile (low, medium, high)")
	streamsAddCmd.MarkFlagRequired("video")
	streamsAddCmd.MarkFlagRequired("start")
	streamsAddCmd.MarkFlagRequired("key")

	streamsLogsCmd.Flags().IntVar(&logLines, "lines", 100, "number of log lines to show")
}

type streamResponse struct {
	ID             int       `json:"id"`
	VideoPath      string    `json:"video_path"`
	Duration       string    `json:"duration,omitempty"`
	ScheduledStart string    `json:"scheduled_start"`
	StreamKey      string    `json:"stream_key"`
	Vertical       bool      `json:"vertical"`
	Quality        string    `json:"quality"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type streamsListResponse struct {
	Streams []streamResponse `json:"streams"`
	Count   int              `json:"count"`
}

type activeResponse struct {
	Active []struct {
		StreamID  int       `json:"stream_id"`
		PID       int       `json:"pid"`
		StartedAt time.Time `json:"started_at"`
	} `json:"active"`
	Count int `json:"count"`
}

// apiCall sends one request to the daemon and decodes the JSON response into
// out when it is non-nil.
func apiCall(method, path string, reqBody, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, GetServerURL()+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := GetHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

func runStreamsList(cmd *cobra.Command, args []string) error {
	var result streamsListResponse
	if err := apiCall("GET", "/api/streams", nil, &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(result)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Video", "Start", "Quality", "Key", "Status")
	for _, s := range result.Streams {
		table.Append(
			fmt.Sprintf("%d", s.ID),
			s.VideoPath,
			s.ScheduledStart,
			s.Quality,
			s.StreamKey,
			s.Status,
		)
	}
	table.Render()
	fmt.Printf("\nTotal streams: %d\n", result.Count)
	return nil
}

func runStreamsAdd(cmd *cobra.Command, args []string) error {
	req := map[string]interface{}{
		"video_path":      addVideoPath,
		"duration":        addDuration,
		"scheduled_start": addScheduledStart,
		"stream_key":      addStreamKey,
		"vertical":        addVertical,
		"quality":         addQuality,
	}

	var result streamResponse
	if err := apiCall("POST", "/api/streams", req, &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(result)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("ID", fmt.Sprintf("%d", result.ID))
	table.Append("Video", result.VideoPath)
	table.Append("Start", result.ScheduledStart)
	table.Append("Quality", result.Quality)
	table.Append("Key", result.StreamKey)
	table.Append("Status", result.Status)
	table.Render()
	fmt.Printf("\nStream added. It will start at %s.\n", result.ScheduledStart)
	return nil
}

func runStreamsStart(cmd *cobra.Command, args []string) error {
	if err := apiCall("POST", fmt.Sprintf("/api/streams/%s/start", args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Stream %s started\n", args[0])
	return nil
}

func runStreamsStop(cmd *cobra.Command, args []string) error {
	if err := apiCall("POST", fmt.Sprintf("/api/streams/%s/stop", args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Stream %s stopped\n", args[0])
	return nil
}

func runStreamsRemove(cmd *cobra.Command, args []string) error {
	if err := apiCall("DELETE", fmt.Sprintf("/api/streams/%s", args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Stream %s removed\n", args[0])
	return nil
}

func runStreamsLogs(cmd *cobra.Command, args []string) error {
	var result struct {
		StreamID int      `json:"stream_id"`
		Lines    []string `json:"lines"`
	}
	path := fmt.Sprintf("/api/streams/%s/logs?lines=%d", args[0], logLines)
	if err := apiCall("GET", path, nil, &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(result)
	}
	if len(result.Lines) == 0 {
		fmt.Println("No logs available for this stream")
		return nil
	}
	for _, line := range result.Lines {
		fmt.Println(line)
	}
	return nil
}

func runStreamsActive(cmd *cobra.Command, args []string) error {
	var result activeResponse
	if err := apiCall("GET", "/api/active", nil, &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(result)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Stream", "PID", "Started")
	for _, a := range result.Active {
		table.Append(
			fmt.Sprintf("%d", a.StreamID),
			fmt.Sprintf("%d", a.PID),
			a.StartedAt.Format("2006-01-02 15:04"),
		)
	}
	table.Render()
	fmt.Printf("\nRunning encoders: %d\n", result.Count)
	return nil
}

package cmd

import (
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	serverURL    string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "restreamd",
	Short: "Scheduled RTMP re-streaming supervisor",
	Long:  `restreamd runs local video files as looping RTMP streams on a schedule, supervises the encoder processes and survives its own restarts.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initClientConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.restreamd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "daemon API URL (default from config or http://127.0.0.1:8090)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initClientConfig resolves the daemon URL for client subcommands.
func initClientConfig() {
	viper.AutomaticEnv()
	viper.BindEnv("server_url", "RESTREAMD_SERVER_URL")

	if serverURL == "" {
		serverURL = viper.GetString("server_url")
	}
	if serverURL == "" {
		serverURL = "http://127.0.0.1:8090"
	}
}

// GetServerURL returns the configured daemon URL with trailing slashes removed
func GetServerURL() string {
	return strings.TrimRight(serverURL, "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// GetHTTPClient returns the client used to talk to the daemon API
func GetHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

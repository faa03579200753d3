package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/skypro1111/live-translator/internal/server"
	"github.com/skypro1111/live-translator/internal/translation"
)

const serviceName = "live-translator"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "translator",
	Short: "Real-time speech recognition and translation",
	Long: `translator captures fixed-length audio chunks from a live input,
recognizes each chunk to text and translates it into the selected language.`,
	SilenceUsage: true,
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the supported target languages",
	Run: func(cmd *cobra.Command, args []string) {
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Code", "Language"})
		for _, lang := range translation.SupportedLanguages() {
			table.Append([]string{lang.String(), lang.Name()})
		}
		table.Render()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, version)
	},
}

func init() {
	server.Version = version

	serveCmd.Flags().StringVarP(&serveOpts.configPath, "config", "c", "", "Path to configuration file")
	serveCmd.Flags().StringVarP(&serveOpts.language, "lang", "l", "", "Target language (overrides translation.default_language)")
	serveCmd.Flags().BoolVar(&serveOpts.autostart, "autostart", false, "Start listening immediately")
	serveCmd.Flags().BoolVar(&serveOpts.console, "console", false, "Print statuses and results to the terminal")

	sendCmd.Flags().StringVar(&sendOpts.addr, "addr", "127.0.0.1:4444", "UDP address of the translator")
	sendCmd.Flags().Uint32Var(&sendOpts.streamID, "stream-id", 1, "Stream identifier")
	sendCmd.Flags().StringVar(&sendOpts.device, "device", "wav", "Device name announced in the start packet")
	sendCmd.Flags().DurationVar(&sendOpts.frame, "frame", sendFrameDefault, "Audio carried by each packet")
	sendCmd.Flags().BoolVar(&sendOpts.realtime, "realtime", true, "Send packets no faster than real time")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

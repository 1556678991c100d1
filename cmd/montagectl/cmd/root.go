package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "montagectl",
	Short: "montagectl submits and inspects render jobs on a montage API",
	Long: `montagectl is the command-line interface for the montage render service.

Common workflows:

  Submit a job description and return immediately:
    montagectl submit -f job.json

  Submit and wait until the job finishes:
    montagectl submit -f job.json --wait

  Check a job:
    montagectl status <job-id>

  Mint a Google Drive refresh token for the gdrive storage provider:
    montagectl gdrive-auth

Configuration:
  MONTAGE_URL   API endpoint (default: http://localhost:8080)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".montagectl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MONTAGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.montagectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "montage API URL")
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}

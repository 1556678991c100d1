// Command montagectl is the operator tool for the montage render API.
package main

import (
	"os"

	"montage/cmd/montagectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command pdftopng converts a PDF into one PNG per page without starting the server
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"github.com/hollyvale/mqttdash/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		cmd.Error(err)
	}
}

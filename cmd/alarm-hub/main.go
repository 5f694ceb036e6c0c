// Command alarm-hub runs the development backend of alarm-monitor.
package main

import "github.com/oshokin/alarm-monitor/cmd/alarm-hub/cmd"

func main() {
	cmd.Execute()
}

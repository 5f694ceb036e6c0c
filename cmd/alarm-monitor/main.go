// Command alarm-monitor watches the alarm feed and event log and sends arm commands.
package main

import "github.com/oshokin/alarm-monitor/cmd/alarm-monitor/cmd"

func main() {
	cmd.Execute()
}

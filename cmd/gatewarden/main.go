// Command gatewarden runs the request admission gateway.
package main

import "github.com/gatewarden/gatewarden/cmd/gatewarden/cmd"

func main() {
	cmd.Execute()
}

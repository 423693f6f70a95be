// Command hldpd is the HLDP debugger server: it loads a list-file script,
// listens for one client connection, and runs the script to completion
// under debugger control, serving breakpoints, stepping, and expression
// requests over the wire.
package main

func main() {
	Execute()
}

//go:build !windows

package transport

// printCommand submits file to the CUPS queue device without filtering.
func printCommand(device, file string) (string, []string) {
	return "lp", []string{"-d", device, "-o", "raw", file}
}

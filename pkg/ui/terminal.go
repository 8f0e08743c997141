// Package ui provides colored terminal output for the CLI.
package ui

import "fmt"

const asciiLogo = `
    ╔════════════════════════════════════════════════╗
    ║ ████████╗ ██████╗  ██████╗ ██████╗  █████╗ ██████╗ ║
    ║ ╚══██╔══╝██╔════╝ ██╔════╝ ██╔══██╗██╔══██╗██╔══██╗║
    ║    ██║   ██║      ██║  ███╗██████╔╝███████║██████╔╝║
    ║    ██║   ██║      ██║   ██║██╔══██╗██╔══██║██╔══██╗║
    ║    ██║   ╚██████╗ ╚██████╔╝██║  ██║██║  ██║██████╔╝║
    ║    ╚═╝    ╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ║
    ║        CLASSROOM PHOTO SYNC UTILITY                ║
    ╚════════════════════════════════════════════════╝
`

var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

var quiet bool

// SetQuietMode suppresses everything except errors.
func SetQuietMode(v bool) {
	quiet = v
}

func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color.
func PrintLogo() {
	if quiet {
		return
	}
	fmt.Print(Cyan(asciiLogo))
}

// PrintError prints an error message in red. Errors print even in
// quiet mode.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Red(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Red(msg))
	}
}

// PrintSuccess prints a success message in green.
func PrintSuccess(msg string) {
	if quiet {
		return
	}
	fmt.Println(Green(msg))
}

// PrintInfo prints a labeled info line in cyan.
func PrintInfo(label string, value string) {
	if quiet {
		return
	}
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow.
func PrintWarning(msg string, args ...interface{}) {
	if quiet {
		return
	}
	if len(args) > 0 {
		fmt.Println(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta.
func PrintHighlight(msg string) {
	if quiet {
		return
	}
	fmt.Println(Magenta(msg))
}
